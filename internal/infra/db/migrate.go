package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultFeedChannel задаёт канал NOTIFY, если FEED_CHANNEL не задан.
const DefaultFeedChannel = "donations_changes"

const feedChannelPlaceholder = "{{feed_channel}}"

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate применяет SQL-миграции по порядку имён. Скрипты идемпотентны.
// Триггеры ленты шлют NOTIFY в feedChannel, тот же канал слушает PostgresFeed.
func Migrate(ctx context.Context, pool *pgxpool.Pool, feedChannel string) error {
	scripts, err := Scripts(feedChannel)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if _, err := pool.Exec(ctx, s.SQL); err != nil {
			return fmt.Errorf("apply %s: %w", s.Name, err)
		}
	}
	return nil
}

// Script описывает миграцию с подставленными параметрами.
type Script struct {
	Name string
	SQL  string
}

// Scripts читает встроенные миграции и подставляет канал ленты.
func Scripts(feedChannel string) ([]Script, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Script, 0, len(names))
	for _, name := range names {
		raw, err := migrations.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Script{Name: name, SQL: render(string(raw), feedChannel)})
	}
	return out, nil
}

func render(script, feedChannel string) string {
	if feedChannel == "" {
		feedChannel = DefaultFeedChannel
	}
	return strings.ReplaceAll(script, feedChannelPlaceholder, quoteLiteral(feedChannel))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
