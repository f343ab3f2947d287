package main

import (
	"context"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/myrjola/casegen/cmd/cli/cases"
	"github.com/myrjola/casegen/cmd/cli/img"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/imagegen"
	"github.com/spf13/cobra"
	"io/fs"
	"os"
	"os/signal"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(cases.Group)
	rootCmd.AddCommand(cases.NewGenerateCommand(os.LookupEnv))
	rootCmd.AddCommand(cases.NewValidateCommand())
	rootCmd.AddGroup(img.Group)
	rootCmd.AddCommand(img.NewGenerateCommand(imagegen.DallE{}, os.LookupEnv))
}

var rootCmd = &cobra.Command{
	Use:          "casegen-cli",
	Long:         `Command line utilities for generating and checking mystery cases`,
	SilenceUsage: true,
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel is called above.
	}
}

func main() {
	Execute()
}
