// Package migration はデータベースのマイグレーションを管理する。
// embed.FSに含めたgoose形式のSQLファイルを、ドライバに応じた方言で適用する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/database"
)

// Run は未適用のマイグレーションをバージョン順に適用する。
// fsysのルートに 00001_description.sql 形式のファイルを置くこと。
func Run(ctx context.Context, db *sql.DB, driver string, fsys fs.FS, logger zerolog.Logger) error {
	dialect, err := dialectFor(driver)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}
	for _, r := range results {
		logger.Info().
			Int64("version", r.Source.Version).
			Str("file", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("マイグレーションを適用しました")
	}
	return nil
}

// dialectFor はドライバ名からgooseの方言を返す。
func dialectFor(driver string) (goose.Dialect, error) {
	switch driver {
	case database.DriverSQLite:
		return goose.DialectSQLite3, nil
	case database.DriverPostgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("未対応のデータベースドライバです: %s", driver)
	}
}
