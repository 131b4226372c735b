// Command inkling is a command-line client for the inkling daemon. It
// speaks the same socket protocol as the editor plugins, which makes it
// handy for scripting and for poking at a running daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	inkling "github.com/greyfriar/inkling"
	"github.com/greyfriar/inkling/assemble"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	flagSocket   string
	flagSession  string
	flagFiletype string
)

func main() {
	root := &cobra.Command{
		Use:           "inkling",
		Short:         "Talk to the inkling daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagSocket, "socket", "", "daemon socket path (default $INKLING_SOCKET)")
	root.PersistentFlags().StringVar(&flagSession, "session", "cli", "session identifier")
	root.PersistentFlags().StringVar(&flagFiletype, "filetype", "", "language of the code (e.g. python, go)")

	root.AddCommand(
		newCompleteCmd(),
		newExplainCmd(),
		newGenerateCmd(),
		newModelsCmd(),
		newClearCmd(),
		newContextCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "inkling:", err)
		os.Exit(1)
	}
}

// promptFromArgsOrStdin takes the prompt from the arguments, or from
// stdin when no argument is given.
func promptFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newCompleteCmd() *cobra.Command {
	var suffix string
	cmd := &cobra.Command{
		Use:   "complete [prefix]",
		Short: "Complete code at the cursor (prefix from the argument or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFromArgsOrStdin(args)
			if err != nil {
				return err
			}
			resp, err := newClient(flagSocket).assist(&inkling.Request{
				RequestID: os.Getpid(),
				SessionID: flagSession,
				Mode:      inkling.ModeComplete,
				Prompt:    prompt,
				Suffix:    suffix,
				Filetype:  flagFiletype,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&suffix, "suffix", "", "text after the cursor")
	return cmd
}

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [code]",
		Short: "Explain a piece of code (from the argument or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFromArgsOrStdin(args)
			if err != nil {
				return err
			}
			resp, err := newClient(flagSocket).assist(&inkling.Request{
				RequestID: os.Getpid(),
				SessionID: flagSession,
				Mode:      inkling.ModeExplain,
				Prompt:    prompt,
				Filetype:  flagFiletype,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var bufferFile string
	cmd := &cobra.Command{
		Use:   "generate <comment>",
		Short: "Generate a snippet from a comment description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			var buffer string
			if bufferFile != "" {
				data, err := os.ReadFile(bufferFile)
				if err != nil {
					return err
				}
				buffer = string(data)
			}

			resp, err := newClient(flagSocket).assist(&inkling.Request{
				RequestID: os.Getpid(),
				SessionID: flagSession,
				Mode:      inkling.ModeGenerate,
				Prompt:    prompt,
				Buffer:    buffer,
				Filetype:  flagFiletype,
			})
			if err != nil {
				return err
			}

			// against a buffer file, filter out lines it already contains
			if buffer != "" {
				lines := assemble.FilterNewLines(resp.Text, strings.Split(buffer, "\n"))
				fmt.Println(strings.Join(lines, "\n"))
				return nil
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&bufferFile, "buffer-file", "", "file providing surrounding context")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the inference server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flagSocket).command("list_models")
			if err != nil {
				return err
			}
			for _, m := range resp.Models {
				fmt.Println(m)
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the session history (--all also wipes the snippet cache)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "clear_history"
			if all {
				action = "clear_all"
			}
			if _, err := newClient(flagSocket).command(action); err != nil {
				return err
			}
			fmt.Println("cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also clear the snippet cache and index")
	return cmd
}

func newContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Show the session turns and cached snippets the daemon holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flagSocket).command("show_context")
			if err != nil {
				return err
			}
			dump := resp.Context
			if dump == nil {
				return fmt.Errorf("daemon returned no context")
			}

			if len(dump.Turns) == 0 {
				fmt.Println("no session turns")
			}
			for i, turn := range dump.Turns {
				fmt.Printf("%2d [%s] %s\n     -> %s\n", i+1, turn.Mode, turn.Prompt, turn.Response)
			}

			fmt.Printf("\ncache: %d entries\n", dump.CacheEntries)
			for _, key := range dump.CacheKeys {
				fmt.Println("  ", key)
			}
			return nil
		},
	}
}
