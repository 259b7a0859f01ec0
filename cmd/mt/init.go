package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/db"
	"github.com/daviddao/mailtriage/internal/display"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .mailtriage/ in the project root",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := findProjectRoot()
		path := filepath.Join(root, config.Dir, config.FileName)

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		c := config.Default()
		c.AuditDB = db.DefaultPath
		if err := config.Save(path, c); err != nil {
			return err
		}

		if err := ensureGitignore(root); err != nil {
			logger.Warn("update .gitignore", zap.Error(err))
		}

		if !quietFlag {
			display.SuccessMsg(cmd.OutOrStdout(), "Initialized mailtriage at %s", path)
		}
		return nil
	},
}

// findProjectRoot walks up from cwd to the nearest directory holding .git.
// It falls back to cwd.
func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

// ensureGitignore adds .mailtriage/ to .gitignore if not already present.
func ensureGitignore(root string) error {
	gitignorePath := filepath.Join(root, ".gitignore")
	entry := config.Dir + "/"

	var last byte = '\n'
	f, err := os.Open(gitignorePath)
	switch {
	case err == nil:
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == entry || line == config.Dir {
				f.Close()
				return nil
			}
		}
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			buf := make([]byte, 1)
			if _, err := f.ReadAt(buf, info.Size()-1); err == nil || errors.Is(err, io.EOF) {
				last = buf[0]
			}
		}
		f.Close()
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	out, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if last != '\n' {
		if _, err := out.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "\n# mailtriage local state (config, audit database)\n%s\n", entry)
	return err
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
