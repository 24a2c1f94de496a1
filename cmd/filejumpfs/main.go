// FileJump FUSE client.
//
// Mounts a FileJump cloud drive as a local filesystem. Directory
// listings are cached and invalidated on mutation; file edits are
// staged locally and reconciled with the server when the file is
// closed.
//
// Sub-commands:
//
//	filejumpfs mount [flags]   Mount the drive (default)
//	filejumpfs login           Obtain and save an access token
//	filejumpfs logout          Remove the saved access token
//	filejumpfs status          Check connectivity without mounting
//	filejumpfs version         Print the version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/zlev67/filejumpfs/internal/bridge"
	"github.com/zlev67/filejumpfs/internal/config"
	"github.com/zlev67/filejumpfs/internal/fsmount"
	"github.com/zlev67/filejumpfs/internal/metrics"
	"github.com/zlev67/filejumpfs/pkg/filejump"
	"github.com/zlev67/filejumpfs/pkg/logger"
)

const version = "1.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "login":
			cmdLogin(os.Args[2:])
			return
		case "logout":
			cmdLogout(os.Args[2:])
			return
		case "status":
			cmdStatus(os.Args[2:])
			return
		case "version":
			fmt.Printf("filejumpfs %s\n", version)
			return
		case "mount":
			// Strip "mount" from args and fall through to normal parsing
			os.Args = append(os.Args[:1], os.Args[2:]...)
		}
	}

	cmdMount()
}

func cmdMount() {
	env := config.Load()

	mountPoint := flag.String("mount", "", "Mount point for the remote drive (required)")
	serverURL := flag.String("server", env.BaseURL, "FileJump server URL")
	token := flag.String("token", env.AuthToken, "API access token")
	email := flag.String("email", "", "Login email, prompts for a password when no token is available")
	stagingDir := flag.String("staging-dir", env.StagingDir, "Directory for staged file content")
	metricsAddr := flag.String("metrics-addr", env.MetricsAddr, "Prometheus listen address (empty disables)")
	allowOther := flag.Bool("allow-other", false, "Allow other users to access the mount")
	verbosity := flag.Int("v", env.Verbose, "Verbosity: 0=errors, 1=info, 2=debug")
	flag.Parse()

	logger.SetLevel(logger.FromVerbosity(*verbosity))

	if *mountPoint == "" && flag.NArg() > 0 {
		*mountPoint = flag.Arg(0)
	}

	// Fall back to the saved login for whatever the flags left blank.
	if *token == "" {
		if tf, err := filejump.LoadToken(); err == nil {
			*token = tf.Token
			if *serverURL == "" {
				*serverURL = tf.Server
			}
			logger.Info("using saved login for %s at %s", tf.Email, tf.Server)
		}
	}
	if *token == "" && *email != "" {
		tok, err := promptLogin(*serverURL, *email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		*token = tok
	}

	cfg := &config.Config{
		BaseURL:     *serverURL,
		AuthToken:   *token,
		MountPoint:  *mountPoint,
		StagingDir:  *stagingDir,
		AllowOther:  *allowOther,
		MetricsAddr: *metricsAddr,
		Verbose:     *verbosity,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	core, err := bridge.NewCore(bridge.CoreConfig{
		ServerURL:  cfg.BaseURL,
		AuthToken:  cfg.AuthToken,
		StagingDir: cfg.StagingDir,
	})
	if err != nil {
		logger.Error("setup failed: %v", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				logger.Error("metrics listener: %v", err)
			}
		}()
	}

	var opts []string
	if cfg.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}

	fs := fsmount.New(core, cfg.MountPoint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("unmounting...")
		core.Shutdown()
		cancel()
	}()

	logger.Info("filejumpfs %s", version)
	logger.Info("  server: %s", cfg.BaseURL)
	logger.Info("  mount:  %s", cfg.MountPoint)

	err = fs.Mount(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mount failed: %v", err)
		os.Exit(1)
	}

	logger.Debug("bridge stats: %s", core.Stats.Summary())
	logger.Info("done")
}

// promptLogin reads a password from the terminal and exchanges the
// credentials for an access token.
func promptLogin(serverURL, email string) (string, error) {
	if serverURL == "" {
		return "", errors.New("server URL is required (-server or FILEJUMP_BASE_URL)")
	}

	fmt.Printf("Password for %s: ", email)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	c := filejump.New(filejump.Config{BaseURL: strings.TrimSuffix(serverURL, "/")})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return c.Login(ctx, email, string(passwordBytes))
}

func cmdLogin(args []string) {
	env := config.Load()
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	serverURL := fs.String("server", env.BaseURL, "FileJump server URL")
	email := fs.String("email", "", "Login email")
	fs.Parse(args)

	if *email == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Email: ")
		line, _ := reader.ReadString('\n')
		*email = strings.TrimSpace(line)
	}

	token, err := promptLogin(*serverURL, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tf := &filejump.TokenFile{
		Token:     token,
		Server:    strings.TrimSuffix(*serverURL, "/"),
		Email:     *email,
		CreatedAt: time.Now(),
	}
	if err := filejump.SaveToken(tf); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Login successful. Token saved to %s\n", filejump.TokenFilePath())
}

func cmdLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	if _, err := filejump.LoadToken(); err != nil {
		fmt.Fprintln(os.Stderr, "No saved login found.")
		os.Exit(1)
	}
	if err := filejump.DeleteToken(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete token file: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Logged out.")
}

func cmdStatus(args []string) {
	env := config.Load()
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", env.BaseURL, "FileJump server URL")
	token := fs.String("token", env.AuthToken, "API access token")
	fs.Parse(args)

	account := ""
	if *token == "" {
		tf, err := filejump.LoadToken()
		if err != nil {
			fmt.Fprintln(os.Stderr, "No token available. Use -token, FILEJUMP_AUTH_TOKEN, or run 'filejumpfs login'.")
			os.Exit(1)
		}
		*token = tf.Token
		account = tf.Email
		if *serverURL == "" {
			*serverURL = tf.Server
		}
	}
	if *serverURL == "" {
		fmt.Fprintln(os.Stderr, "Error: server URL is required (-server or FILEJUMP_BASE_URL)")
		os.Exit(1)
	}

	c := filejump.New(filejump.Config{
		BaseURL:   strings.TrimSuffix(*serverURL, "/"),
		AuthToken: *token,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := c.ListEntries(ctx, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach %s: %v\n", *serverURL, err)
		os.Exit(1)
	}

	fmt.Printf("Server:       %s\n", *serverURL)
	if account != "" {
		fmt.Printf("Account:      %s\n", account)
	}
	fmt.Printf("Root entries: %d\n", len(entries))
}
