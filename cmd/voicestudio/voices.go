package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/voice"
)

func voicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Inspect and extend the voice catalog",
	}

	var builtin bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List voices by gender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pool voice.Pool
			if builtin {
				pool = voice.DefaultPool()
			} else {
				infos, err := remote.New(cfg.Remote).Voices(cmd.Context())
				if err != nil {
					return err
				}
				pool = voice.PoolFromCatalog(infos)
			}
			printPool(pool)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&builtin, "builtin", false, "show the built-in pool instead of the remote catalog")

	var name string
	uploadCmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Register a cloned voice from an audio sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			resp, err := remote.New(cfg.Remote).UploadVoice(cmd.Context(), filepath.Base(args[0]), f, name)
			if err != nil {
				return err
			}
			successColour.Printf("Uploaded %s\n", args[0])
			for k, v := range resp {
				fmt.Printf("  %s: %v\n", k, v)
			}
			return nil
		},
	}
	uploadCmd.Flags().StringVar(&name, "name", "", "voice name (defaults to the file name on the server)")

	cmd.AddCommand(listCmd, uploadCmd)
	return cmd
}

func printPool(p voice.Pool) {
	titleColour.Printf("%d voices\n", len(p.All))
	infoColour.Printf("male (%d):\n", len(p.Male))
	for _, v := range p.Male {
		fmt.Printf("  %s\n", v)
	}
	infoColour.Printf("female (%d):\n", len(p.Female))
	for _, v := range p.Female {
		fmt.Printf("  %s\n", v)
	}
}
