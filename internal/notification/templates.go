package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
)

//go:embed templates/*.html
var templateFiles embed.FS

// templates は本文のテンプレート。ファイル名で参照する。
var templates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// 件名。
const (
	subjectVerification = "Verificá tu correo electrónico"
	subjectWelcome      = "¡Bienvenido/a a Liquidar!"
)

// mailData はテンプレートに渡す値。
type mailData struct {
	FirstName string
	Link      string
}

// render はテンプレートnameをdataで展開する。
func render(name string, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("テンプレート %s の展開に失敗: %w", name, err)
	}
	return buf.String(), nil
}

// verificationLink はベースURLにtokenクエリを付けた確認リンクを返す。
// ベースURLに既存のクエリがあれば保持する。
func verificationLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("確認URLの解析に失敗: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
