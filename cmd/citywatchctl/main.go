package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/auth"
	"github.com/citywatch/api/internal/db"
	"github.com/citywatch/api/internal/repo"
	"github.com/citywatch/api/internal/taxonomy"
	"github.com/citywatch/api/internal/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	// hash-password needs no database
	if cmd == "hash-password" {
		if err := runHashPassword(args); err != nil {
			log.Fatal().Err(err).Msg("hash-password failed")
		}
		return
	}

	_ = godotenv.Load()
	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("set DB_DSN or DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	defer pool.Close()

	switch cmd {
	case "migrate":
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrate failed")
		}
		log.Info().Msg("schema up to date")
	case "seed":
		if err := runSeed(ctx, pool, args); err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
	case "create-staff":
		if err := runCreateStaff(ctx, pool, args); err != nil {
			log.Fatal().Err(err).Msg("create-staff failed")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "citywatchctl")
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  citywatchctl migrate")
	fmt.Fprintln(os.Stderr, "  citywatchctl seed [--migrate]")
	fmt.Fprintln(os.Stderr, "  citywatchctl create-staff --phone 9999999999 --name Admin --password secret1 --role SUPER_ADMIN [--city-id <uuid>]")
	fmt.Fprintln(os.Stderr, "  citywatchctl hash-password <password>")
}

func runHashPassword(args []string) error {
	if len(args) < 1 || args[0] == "" {
		return errors.New("password argument is required")
	}
	hash, err := auth.Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runSeed(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	migrate := fs.Bool("migrate", false, "apply the schema before seeding")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	cityID, err := seedReferenceData(ctx, taxonomy.NewRepository(pool))
	if err != nil {
		return err
	}
	log.Info().Str("city_id", cityID.String()).Msg("reference data seeded")
	return nil
}

type staffInput struct {
	Phone    string `validate:"required,phone"`
	Name     string `validate:"required,min=2,max=100"`
	Password string `validate:"required,min=6"`
}

func runCreateStaff(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("create-staff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		phone    = fs.String("phone", "", "ten digit mobile number")
		name     = fs.String("name", "", "display name")
		password = fs.String("password", "", "initial password")
		roleRaw  = fs.String("role", string(repo.RoleModerator), "MODERATOR, AUTHORITY, CITY_ADMIN or SUPER_ADMIN")
		cityRaw  = fs.String("city-id", "", "assigned city (required for MODERATOR)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := staffInput{Phone: strings.TrimSpace(*phone), Name: strings.TrimSpace(*name), Password: *password}
	if err := util.ValidateStruct(in); err != nil {
		return err
	}
	role, ok := repo.ParseRole(*roleRaw)
	if !ok || role == repo.RoleCitizen || role == repo.RoleVerifiedContributor {
		return fmt.Errorf("invalid staff role %q", *roleRaw)
	}

	var cityID *uuid.UUID
	if *cityRaw != "" {
		id, ok := util.ParseID(*cityRaw)
		if !ok {
			return errors.New("invalid city-id")
		}
		if _, err := taxonomy.NewRepository(pool).GetCity(ctx, id); err != nil {
			return fmt.Errorf("city %s: %w", id, err)
		}
		cityID = &id
	}
	if role == repo.RoleModerator && cityID == nil {
		return errors.New("moderators need --city-id")
	}

	hash, err := auth.Hash(in.Password)
	if err != nil {
		return err
	}

	store := repo.NewStore(pool)
	user, err := store.CreateUser(ctx, repo.InsertUserParams{
		Phone:        in.Phone,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
	}, func(u repo.User) audit.Entry {
		return audit.NewEntry(ctx, nil, "SYSTEM", audit.ActionUserRegister, audit.EntityUser, u.ID.String()).
			WithDetail("role", string(role))
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return fmt.Errorf("phone %s already registered", in.Phone)
	}
	if err != nil {
		return err
	}

	now := util.Now()
	if _, err := store.MarkPhoneVerified(ctx, user.Phone, now); err != nil {
		return err
	}
	if cityID != nil {
		entry := audit.NewEntry(ctx, nil, "SYSTEM", audit.ActionUserAssignCity, audit.EntityUser, user.ID.String()).
			WithDetail("cityId", cityID.String())
		if user, err = store.UpdateAssignedCity(ctx, user.ID, cityID, now, entry); err != nil {
			return err
		}
	}

	out, _ := json.MarshalIndent(user.Public(), "", "  ")
	fmt.Println(string(out))
	return nil
}
