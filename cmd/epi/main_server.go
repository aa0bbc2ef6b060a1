package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/core"
	"github.com/quietbeacon/epi/internal/server"
	"github.com/quietbeacon/epi/internal/version"
	"github.com/urfave/cli/v2"
)

// serverCommand starts the persistent procedure server
func serverCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	srv, err := server.NewIndexServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Set project-specific socket path
	socketPath := server.GetSocketPathForRoot(cfg.Project.Root)
	srv.SetSocketPath(socketPath)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("Procedure server started successfully\n")
	fmt.Printf("Socket: %s\n", socketPath)
	fmt.Printf("Root: %s\n", cfg.Project.Root)
	fmt.Printf("\nUse 'epi shutdown' to stop the server\n")

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal or a client-requested shutdown
	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
	case <-func() chan struct{} {
		ch := make(chan struct{})
		go func() {
			srv.Wait()
			close(ch)
		}()
		return ch
	}():
		fmt.Println("Server shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fmt.Println("Server shut down cleanly")
	return nil
}

// shutdownCommand sends a shutdown request to the running server
func shutdownCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	socketPath := server.GetSocketPathForRoot(cfg.Project.Root)
	client := server.NewClientWithSocket(socketPath)

	if !client.IsServerRunning() {
		return fmt.Errorf("no server is running for root: %s", cfg.Project.Root)
	}

	force := c.Bool("force")

	fmt.Printf("Shutting down server for root: %s\n", cfg.Project.Root)
	if err := client.Shutdown(force); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	// Wait a moment to confirm shutdown
	time.Sleep(500 * time.Millisecond)

	if client.IsServerRunning() {
		return fmt.Errorf("server did not shut down")
	}

	fmt.Println("Server shut down successfully")
	return nil
}

// ensureServerRunning checks if the procedure server is running, and starts
// it if not. It uses a project-specific socket path based on the configured
// root directory.
func ensureServerRunning(cfg *config.Config) (*server.Client, error) {
	socketPath := server.GetSocketPathForRoot(cfg.Project.Root)
	client := server.NewClientWithSocket(socketPath)

	if client.IsServerRunning() {
		// A server left over from an older binary answers with a different
		// build id. Replace it so responses match the installed epi.
		ping, err := client.Ping()
		if err == nil && ping.BuildID != "" && ping.BuildID != version.BuildID() {
			fmt.Fprintln(os.Stderr, "Procedure server was started by a different build, restarting...")
			if err := client.Shutdown(false); err != nil {
				return nil, fmt.Errorf("failed to stop stale server: %w", err)
			}
			deadline := time.Now().Add(5 * time.Second)
			for client.IsServerRunning() {
				if time.Now().After(deadline) {
					return nil, fmt.Errorf("stale server did not stop")
				}
				time.Sleep(100 * time.Millisecond)
			}
		} else {
			return client, nil
		}
	}

	// Server not running - start it in background
	fmt.Fprintln(os.Stderr, "Procedure server not running, starting in background...")

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Start the server with the correct root directory
	args := []string{"server"}
	if cfg.Project.Root != "" && cfg.Project.Root != "." {
		args = append([]string{"--root", cfg.Project.Root}, args...)
	}
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	// Detach from the process so it continues after we exit
	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("failed to detach server process: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Waiting for procedure server to be ready...")
	if err := client.WaitForReady(30 * time.Second); err != nil {
		return nil, fmt.Errorf("server did not become ready: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Procedure server ready")
	return client, nil
}

// startSharedProcedureServer starts the socket server in-process around an
// existing engine. This lets the MCP session share its store with CLI
// commands instead of each side loading the manuals separately.
func startSharedProcedureServer(cfg *config.Config, engine *core.Engine) (*server.IndexServer, error) {
	srv, err := server.NewIndexServerWithEngine(cfg, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to create procedure server: %w", err)
	}

	// Start listens on the project-specific socket derived from the root
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start procedure server: %w", err)
	}

	return srv, nil
}
