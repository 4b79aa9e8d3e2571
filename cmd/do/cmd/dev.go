package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/templui/storyline/internal/config"
	"github.com/templui/storyline/internal/db"
)

func DevCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Migrate the dev database, then run air for hot-reload development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(cmd.Context())
		},
	}
}

func runDev(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	airPath, err := exec.LookPath("air")
	if err != nil {
		fmt.Println("Missing binary: air")
		fmt.Println("Install with:")
		fmt.Println("  go install github.com/air-verse/air@latest")
		return fmt.Errorf("air not found")
	}

	// Reads .env, so DB_DRIVER, DB_CONNECTION and PORT match what the server sees.
	cfg := config.Load()
	if cfg.IsProduction() {
		return fmt.Errorf("refusing to run dev against APP_ENV=production")
	}

	fmt.Printf("==> Migrating %s database %s...\n", cfg.DBDriver, cfg.DBConnection)
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	db.Close(database)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	fmt.Println("Building bin/do...")
	build := exec.Command("go", "build", "-o", "bin/do", "./cmd/do")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return fmt.Errorf("failed to build do: %w", err)
	}

	return syscall.Exec(airPath, airArgs(), devEnv(os.Environ(), cfg))
}

func airArgs() []string {
	return []string{
		"air",
		"-c", "/dev/null",
		"-root", ".",
		"-build.cmd", "go build -o ./tmp/main ./cmd/server",
		"-build.bin", "./tmp/main",
		"-build.delay", "100",
		"-build.exclude_dir", "bin,tmp,data,_examples",
		"-build.exclude_regex", "_test.go$",
		"-build.include_ext", "go,sql",
		"-build.kill_delay", "500ms",
		"-build.send_interrupt", "true",
	}
}

// devEnv pins the server to the loaded config so a stale shell export
// cannot point it at another port or database.
func devEnv(base []string, cfg *config.Config) []string {
	pinned := map[string]string{
		"APP_ENV":       "development",
		"PORT":          cfg.Port,
		"DB_DRIVER":     cfg.DBDriver,
		"DB_CONNECTION": cfg.DBConnection,
	}

	env := slices.DeleteFunc(slices.Clone(base), func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		_, ok := pinned[key]
		return ok
	})
	for _, key := range []string{"APP_ENV", "PORT", "DB_DRIVER", "DB_CONNECTION"} {
		env = append(env, key+"="+pinned[key])
	}
	return env
}
