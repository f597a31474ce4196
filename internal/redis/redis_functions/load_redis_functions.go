package redis_functions

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed *.lua
var fs embed.FS

// Names lists the embedded Lua libraries.
func Names() ([]string, error) {
	files, err := fs.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embed dir: %w", err)
	}
	var out []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".lua") {
			continue
		}
		out = append(out, f.Name())
	}
	return out, nil
}

// LoadAll loads or replaces every embedded Lua library in Redis.
func LoadAll(ctx context.Context, rdb *redis.Client) error {
	names, err := Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		code, err := fs.ReadFile(name)
		if err != nil {
			return err
		}
		if err := rdb.FunctionLoadReplace(ctx, string(code)).Err(); err != nil {
			return fmt.Errorf("load lua %s: %w", name, err)
		}
		zap.L().Info("lua function loaded", zap.String("file", name))
	}
	return nil
}
