// Package validation は入力値の検証を行い、日本語のエラーメッセージを返す。
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/ja"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ja_translations "github.com/go-playground/validator/v10/translations/ja"
)

// Validator は構造体のvalidateタグを検証する。
type Validator struct {
	// validate は検証エンジン。
	validate *validator.Validate
	// trans はエラーメッセージの翻訳器。
	trans ut.Translator
}

// New は日本語の翻訳を登録したValidatorを生成する。
// エラーメッセージのフィールド名にはjsonタグの名前を使用する。
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			if name, _, _ = strings.Cut(fld.Tag.Get("mapstructure"), ","); name == "" {
				return fld.Name
			}
		}
		return name
	})

	locale := ja.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("ja")
	// 登録に失敗するのは翻訳定義が壊れている場合のみ
	if err := ja_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}

	return &Validator{validate: validate, trans: trans}
}

// Error は検証エラーの一覧。
type Error struct {
	// Messages はフィールドごとの翻訳済みメッセージ。
	Messages []string
}

// Error はメッセージを連結して返す。
func (e *Error) Error() string {
	return strings.Join(e.Messages, "、")
}

// Struct はsを検証する。構造体以外の値は検証せずnilを返す。
func (v *Validator) Struct(s any) error {
	rv := reflect.ValueOf(s)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fe.Translate(v.trans))
	}
	return &Error{Messages: messages}
}

// std はパッケージ関数が使用するValidator。
var std = New()

// Struct は既定のValidatorでsを検証する。
func Struct(s any) error {
	return std.Struct(s)
}
