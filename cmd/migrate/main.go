package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/VoteFox/internal/pkg/database"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
)

const migrationsSource = "file://migrations"

type mysqlTarget struct {
	user, password, host, port, name string
}

func targetFromEnv() mysqlTarget {
	return mysqlTarget{
		user:     env.GetEnv("DB_USER", "votefox"),
		password: env.GetEnv("DB_PASSWORD", "votefox"),
		host:     env.GetEnv("DB_HOST", "db"),
		port:     env.GetEnv("DB_PORT", "3306"),
		name:     env.GetEnv("DB_NAME", "votefox_db"),
	}
}

func (t mysqlTarget) url() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true", t.user, t.password, t.host, t.port, t.name)
}

func (t mysqlTarget) String() string {
	return fmt.Sprintf("%s@%s:%s/%s", t.user, t.host, t.port, t.name)
}

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]

	if command == "auto" {
		syncSchema()
		return
	}

	run, ok := map[string]func(*migrate.Migrate, []string) error{
		"up":     up,
		"down":   down,
		"goto":   gotoVersion,
		"force":  force,
		"status": status,
	}[command]
	if !ok {
		usage()
		os.Exit(1)
	}

	target := targetFromEnv()
	log.Infof("[Migrate] %s on %s", command, target)
	m, err := migrate.New(migrationsSource, target.url())
	if err != nil {
		log.Fatalf("[Migrate] Cannot open migrations: %v", err)
	}

	runErr := run(m, args)
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		log.Warnf("[Migrate] Close: source=%v database=%v", sourceErr, dbErr)
	}
	if runErr != nil {
		log.Errorf("[Migrate] %s failed: %v", command, runErr)
		os.Exit(1)
	}
}

// syncSchema is for postgres and sqlite deployments; the SQL files are MySQL only.
func syncSchema() {
	database.SetupDatabase()
	if err := database.Migrate(database.GetDB()); err != nil {
		log.Fatalf("[Migrate] AutoMigrate failed: %v", err)
	}
	log.Info("[Migrate] Payment tables synchronized")
}

func up(m *migrate.Migrate, _ []string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("[Migrate] Schema already current")
		return nil
	}
	if err != nil {
		return err
	}
	return status(m, nil)
}

func down(m *migrate.Migrate, _ []string) error {
	if err := m.Steps(-1); err != nil {
		return err
	}
	return status(m, nil)
}

func gotoVersion(m *migrate.Migrate, args []string) error {
	version, err := versionArg(args)
	if err != nil {
		return err
	}
	err = m.Migrate(version)
	if errors.Is(err, migrate.ErrNoChange) {
		log.Infof("[Migrate] Already at version %d", version)
		return nil
	}
	if err != nil {
		return err
	}
	return status(m, nil)
}

// force clears the dirty flag after a migration was repaired by hand.
func force(m *migrate.Migrate, args []string) error {
	version, err := versionArg(args)
	if err != nil {
		return err
	}
	if err := m.Force(int(version)); err != nil {
		return err
	}
	return status(m, nil)
}

func status(m *migrate.Migrate, _ []string) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("[Migrate] No migration applied")
		return nil
	}
	if err != nil {
		return err
	}
	if dirty {
		log.Warnf("[Migrate] Version %d is dirty, fix it and run force %d", version, version)
		return nil
	}
	log.Infof("[Migrate] Version %d", version)
	return nil
}

func versionArg(args []string) (uint, error) {
	if len(args) == 0 {
		return 0, errors.New("missing version")
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	return uint(v), nil
}

func usage() {
	fmt.Println(`Usage: migrate <command> [version]

MySQL (SQL files in ./migrations):
  up         apply pending migrations
  down       roll back one migration
  goto N     migrate to version N
  force N    mark version N as clean
  status     print the applied version

Any DB_DRIVER:
  auto       create or update the payment tables with gorm`)
}
