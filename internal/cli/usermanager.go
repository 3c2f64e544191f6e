package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shalteor/quassel-tools/internal/db"
	"github.com/shalteor/quassel-tools/internal/models"
)

const userManagerName = "quasselcore-usermanager"

type mode int

const (
	modeList mode = iota
	modeAdd
	modeDelete
	modeRename
	modeValidate
	modeUpdate
)

var modeFlags = []struct {
	flag string
	mode mode
}{
	{"list", modeList},
	{"add", modeAdd},
	{"delete", modeDelete},
	{"rename", modeRename},
	{"validate", modeValidate},
	{"update", modeUpdate},
}

type userOptions struct {
	mode          mode
	file          string
	user          string
	password      string
	newName       string
	authenticator string
	initSchema    bool
	debug         bool
}

func userManagerFlags() *pflag.FlagSet {
	fs := newFlagSet(userManagerName)
	fs.BoolP("help", "h", false, "print detailed help screen")
	fs.BoolP("version", "V", false, "print version information")
	fs.StringP("file", "f", "", "sqlite database file")
	fs.BoolP("list", "l", false, "list all quassel core users")
	fs.BoolP("add", "a", false, "add a quassel core user (requires --user and --password)")
	fs.BoolP("delete", "d", false, "delete a quassel core user with its networks, buffers and backlog (requires --user)")
	fs.BoolP("rename", "r", false, "rename a quassel core user (requires --user and --new-name)")
	fs.BoolP("validate", "v", false, "validate credentials of a quassel core user (requires --user and --password)")
	fs.BoolP("update", "u", false, "set a new password for an existing quassel core user (requires --user and --password)")
	fs.StringP("user", "U", "", "the quassel core username")
	fs.StringP("password", "P", "", "the password for the quassel core user, prompted for when omitted on a terminal")
	fs.StringP("new-name", "N", "", "the new username for --rename")
	fs.String("authenticator", models.AuthenticatorDatabase, "authenticator of a new user (Database or LDAP)")
	fs.Bool("init-schema", false, "create a new database file with the quassel user schema first")
	fs.Bool("debug", false, "enable debug logging")
	return fs
}

func userManagerUsage(w io.Writer) {
	fmt.Fprintf(w, "\nUsage: %s [--help] [--version] [--file] [--user] [--password] [--new-name]"+
		" [--add] [--delete] [--rename] [--validate] [--update] [--list]\n\n", userManagerName)
}

func userManagerHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "\n%s v%s\n\nmanage quassel core users\n", userManagerName, version)
	userManagerUsage(w)
	fmt.Fprintf(w, "Options:\n%s\n", fs.FlagUsages())
}

// RunUserManager runs quasselcore-usermanager with args (without the program
// name) and returns the exit code.
func RunUserManager(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		userManagerUsage(stderr)
		return exitFail
	}

	fs := userManagerFlags()
	if err := fs.Parse(args); err != nil {
		return inputError(stderr, userManagerUsage, err.Error())
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		fmt.Fprintf(stderr, "failed to bind flags: %v\n", err)
		return exitFail
	}

	if v.GetBool("help") {
		userManagerHelp(stdout, fs)
		return exitOK
	}
	if v.GetBool("version") {
		fmt.Fprintf(stdout, "%s v%s\n", userManagerName, version)
		return exitOK
	}
	if fs.NArg() > 0 {
		return inputError(stderr, userManagerUsage, fmt.Sprintf("unexpected argument: %s", fs.Arg(0)))
	}

	opts, msg := userOptionsFrom(v)
	if msg != "" {
		return inputError(stderr, userManagerUsage, msg)
	}

	if opts.password == "" && needsPassword(opts.mode) {
		pw, err := promptPassword(stdin, stderr)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFail
		}
		if pw == "" {
			return inputError(stderr, userManagerUsage, "missing password.")
		}
		opts.password = pw
	}

	logger := newLogger(stderr, opts.debug, userManagerName)
	defer func() { _ = logger.Sync() }()

	store, code := openStore(ctx, opts, stderr, logger)
	if store == nil {
		return code
	}
	defer store.Close()

	return runMode(ctx, store, opts, stdout, stderr)
}

// userOptionsFrom validates the parsed flags. A non-empty message is an
// input error.
func userOptionsFrom(v *viper.Viper) (userOptions, string) {
	opts := userOptions{
		file:          v.GetString("file"),
		user:          v.GetString("user"),
		password:      v.GetString("password"),
		newName:       v.GetString("new-name"),
		authenticator: v.GetString("authenticator"),
		initSchema:    v.GetBool("init-schema"),
		debug:         v.GetBool("debug"),
	}

	var selected []string
	for _, m := range modeFlags {
		if v.GetBool(m.flag) {
			selected = append(selected, "--"+m.flag)
			opts.mode = m.mode
		}
	}
	if len(selected) > 1 {
		return opts, fmt.Sprintf("only one operation may be given, got %v.", selected)
	}

	switch {
	case opts.file == "":
		return opts, "we need a database file."
	case opts.mode != modeList && opts.user == "":
		return opts, "missing user."
	case opts.mode == modeRename && opts.newName == "":
		return opts, "missing new name."
	case opts.authenticator != models.AuthenticatorDatabase && opts.authenticator != models.AuthenticatorLDAP:
		return opts, fmt.Sprintf("unknown authenticator %q.", opts.authenticator)
	}
	return opts, ""
}

func needsPassword(m mode) bool {
	return m == modeAdd || m == modeValidate || m == modeUpdate
}

// openStore opens the database, or creates it for --init-schema. A nil
// store comes with the exit code to return.
func openStore(ctx context.Context, opts userOptions, stderr io.Writer, logger *zap.Logger) (*db.DB, int) {
	if opts.initSchema {
		if _, err := os.Stat(opts.file); err == nil {
			return nil, inputError(stderr, userManagerUsage, fmt.Sprintf("The database file %s already exists.", opts.file))
		}
		store, err := db.Create(ctx, opts.file, logger)
		if err != nil {
			fmt.Fprintf(stderr, "failed to create database %s: %v\n", opts.file, err)
			return nil, exitFail
		}
		return store, exitOK
	}

	store, err := db.Open(ctx, opts.file, logger)
	if errors.Is(err, db.ErrDatabaseMissing) {
		return nil, inputError(stderr, userManagerUsage, fmt.Sprintf("The database file %s does not exist.", opts.file))
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, exitFail
	}
	return store, exitOK
}

func runMode(ctx context.Context, store *db.DB, opts userOptions, stdout, stderr io.Writer) int {
	var err error
	code := exitOK

	switch opts.mode {
	case modeAdd:
		code, err = addUser(ctx, store, opts, stdout, stderr)
	case modeDelete:
		code, err = deleteUser(ctx, store, opts, stdout, stderr)
	case modeRename:
		code, err = renameUser(ctx, store, opts, stdout, stderr)
	case modeValidate:
		code, err = validateUser(ctx, store, opts, stdout)
	case modeUpdate:
		code, err = updateUser(ctx, store, opts, stdout)
	default:
		err = listUsers(ctx, store, stdout)
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}
	return code
}

func addUser(ctx context.Context, store *db.DB, opts userOptions, stdout, stderr io.Writer) (int, error) {
	_, err := store.AddUser(ctx, opts.user, opts.password, opts.authenticator)
	if errors.Is(err, db.ErrUserExists) {
		fmt.Fprintf(stderr, "user %s already exists\n", opts.user)
		return exitFail, nil
	}
	if err != nil {
		return exitFail, err
	}

	fmt.Fprintf(stdout, "user %s successfully added\n", opts.user)
	return exitOK, nil
}

func deleteUser(ctx context.Context, store *db.DB, opts userOptions, stdout, stderr io.Writer) (int, error) {
	userID, err := store.GetUserID(ctx, opts.user)
	if err != nil {
		return exitFail, err
	}
	if userID == 0 {
		fmt.Fprintf(stderr, "user %s does not exist\n", opts.user)
		return exitFail, nil
	}

	deps, err := store.CountDependents(ctx, userID)
	if err != nil {
		return exitFail, err
	}
	fmt.Fprintf(stdout, "delete user %s with %d networks, %d buffers and %d backlog messages\n",
		opts.user, deps.Networks, deps.Buffers, deps.Backlog)

	if err := store.DeleteUser(ctx, userID); err != nil {
		return exitFail, err
	}

	fmt.Fprintf(stdout, "user %s successfully deleted\n", opts.user)
	return exitOK, nil
}

func renameUser(ctx context.Context, store *db.DB, opts userOptions, stdout, stderr io.Writer) (int, error) {
	userID, err := store.RenameUserByName(ctx, opts.user, opts.newName)
	if errors.Is(err, db.ErrUserExists) {
		fmt.Fprintf(stderr, "user %s already exists\n", opts.newName)
		return exitFail, nil
	}
	if err != nil {
		return exitFail, err
	}
	if userID == 0 {
		fmt.Fprintf(stderr, "user %s does not exist\n", opts.user)
		return exitFail, nil
	}

	fmt.Fprintf(stdout, "user %s successfully renamed to %s\n", opts.user, opts.newName)
	return exitOK, nil
}

func validateUser(ctx context.Context, store *db.DB, opts userOptions, stdout io.Writer) (int, error) {
	userID, err := store.ValidateUser(ctx, opts.user, opts.password)
	if err != nil {
		return exitFail, err
	}
	if userID == 0 {
		fmt.Fprintln(stdout, "username and password are not valid")
		return exitFail, nil
	}

	authenticator, err := store.GetUserAuthenticator(ctx, userID)
	if err != nil {
		return exitFail, err
	}
	if authenticator != models.AuthenticatorDatabase {
		fmt.Fprintf(stdout, "note: user %s authenticates against %s, the core ignores the local password\n", opts.user, authenticator)
	}

	fmt.Fprintln(stdout, "username and password are valid")
	return exitOK, nil
}

func updateUser(ctx context.Context, store *db.DB, opts userOptions, stdout io.Writer) (int, error) {
	updated, err := store.UpdateUserByName(ctx, opts.user, opts.password)
	if err != nil {
		return exitFail, err
	}
	if !updated {
		fmt.Fprintf(stdout, "user %s update failed\n", opts.user)
		return exitFail, nil
	}

	fmt.Fprintf(stdout, "user %s successfully updated\n", opts.user)
	return exitOK, nil
}

func listUsers(ctx context.Context, store *db.DB, stdout io.Writer) error {
	users, err := store.GetAllAuthUserNames(ctx)
	if err != nil {
		return err
	}

	for _, id := range slices.Sorted(maps.Keys(users)) {
		fmt.Fprintf(stdout, "uid: %d, username: %s\n", id, users[id])
	}
	return nil
}
