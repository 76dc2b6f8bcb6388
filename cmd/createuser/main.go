// Command createuser creates a sign-in account, optionally with admin rights.
//
//	createuser -name "Jane Doe" -email jane@example.com [-admin]
//
// The password is prompted for without echo when stdin is a terminal and read
// from the first line of stdin otherwise.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"pollworker/internal/platform/config"
	"pollworker/internal/platform/logger"
	"pollworker/internal/platform/postgres"
	"pollworker/internal/user/models"
	userservice "pollworker/internal/user/service"
	userstore "pollworker/internal/user/store"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/secrets"
)

// readPassword is swapped in tests to avoid touching the terminal.
var readPassword = term.ReadPassword

type options struct {
	name    string
	email   string
	isAdmin bool
}

// AccountCreator is the part of the user service the command needs.
type AccountCreator interface {
	CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.User, error)
}

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must be set")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}

	users := userservice.New(userstore.NewPostgres(db), secrets.DefaultHasher, userservice.WithLogger(log))
	if err := run(ctx, opts, users, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		db.Close()
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("createuser", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.name, "name", "", "full name of the user (required)")
	fs.StringVar(&opts.email, "email", "", "email address used to sign in (required)")
	fs.BoolVar(&opts.isAdmin, "admin", false, "grant admin rights")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, opts options, users AccountCreator, in *os.File, out io.Writer) error {
	password, err := promptPassword(in, out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	user, err := users.CreateAccount(ctx, models.CreateAccountRequest{
		Name:     opts.name,
		Email:    opts.email,
		Password: password,
		IsAdmin:  opts.isAdmin,
	})
	if err != nil {
		return describe(err)
	}

	role := "user"
	if user.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(out, "Created %s %s <%s> (%s)\n", role, user.Name, user.Email, user.ID)
	return nil
}

func promptPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(out, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Confirm password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// describe turns validation failures into one line per field.
func describe(err error) error {
	fields := dErrors.FieldsOf(err)
	if len(fields) == 0 {
		return err
	}
	var b strings.Builder
	b.WriteString("invalid account:")
	for _, key := range []string{"name", "email", "password"} {
		if msg, ok := fields[key]; ok {
			b.WriteString("\n  " + key + ": " + msg)
		}
	}
	return errors.New(b.String())
}
