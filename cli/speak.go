package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrsingh-rishi/voice-agent/conversation"
	"github.com/mrsingh-rishi/voice-agent/tts"
)

var (
	speakText  string
	speakVoice string
	speakOut   string
)

var speakCmd = &cobra.Command{
	Use:   "speak",
	Short: "Synthesize text to a WAV file with the configured voice",
	RunE:  runSpeak,
}

func init() {
	speakCmd.Flags().StringVar(&speakText, "text", "", "text to speak")
	speakCmd.Flags().StringVar(&speakVoice, "voice", "", "voice override")
	speakCmd.Flags().StringVarP(&speakOut, "out", "o", "response.wav", "output file")
	_ = speakCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(speakCmd)
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	synth, err := conversation.NewSynthesizer(cfg.TTS)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Synthesize)
	defer cancel()
	wav, err := tts.NewSpeaker(synth, l.Zerolog()).Speak(ctx, speakText, speakVoice)
	if err != nil {
		return err
	}
	if err := os.WriteFile(speakOut, wav, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", speakOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(wav), speakOut)
	return nil
}
