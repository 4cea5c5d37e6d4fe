package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"s2s-stream-client/internal/config"
	"s2s-stream-client/internal/shutdown"
)

// NewCommand builds the root command. The exit status of a completed run is
// stored in code.
func NewCommand(stdout io.Writer, ctl *shutdown.Controller, code *int) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "s2sclient",
		Short: "Stream audio to a speech-to-speech translation service",
		Long: `s2sclient streams audio files or a live capture device to a streaming
speech-to-speech translation service, runs up to num_parallel_requests
sessions at once and writes translated speech to tts_audio_file.`,
		Example: `  s2sclient --audio_file=clips/ --num_parallel_requests=4 --tts_encoding=pcm
  s2sclient --audio_device=default --source_language_code=en-US --target_language_code=de-DE`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load(cmd.Flags(), v)
			a := New(cfg, stdout)

			ctl.Listen()
			defer ctl.Stop()

			report, err := a.Run(cmd.Context(), ctl)
			*code = ExitCode(report, err)
			return nil
		},
	}
	cmd.SetOut(stdout)

	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

// Main runs the client with args (excluding the program name) and returns the
// process exit status.
func Main(args []string, stdout, stderr io.Writer) int {
	code := ExitOK
	ctl := shutdown.New(os.Exit)
	cmd := NewCommand(stdout, ctl, &code)
	cmd.SetErr(stderr)

	if len(args) == 0 {
		cmd.Usage()
		return ExitFailure
	}

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		cmd.Usage()
		return ExitFailure
	}
	return code
}
