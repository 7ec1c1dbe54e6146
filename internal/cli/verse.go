package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/khatm/internal/khatm"
)

// NewVerseCommand creates the verse command. It reads no database.
func NewVerseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verse <ordinal|surah:ayah>",
		Short: "Look up a verse by ordinal or position",
		Long: `Look up a verse by its ordinal (1-6236) or by "surah:ayah".

Text is shown when verse.text_path is configured.`,
		Example: `  khatm verse 262
  khatm verse 2:255`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			verses, err := loadVerses(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load verse index", err)
			}

			f := rootOpts.formatter(cmd.OutOrStdout())
			v, err := verses.ParsePosition(args[0])
			if err != nil {
				_ = f.Error(string(khatm.ErrCodeVerseOutOfRange), err.Error(), nil)
				return NewExitError(ExitFailure, err.Error())
			}
			return f.Success(verseView{Verse: v, Ref: v.Position()})
		},
	}

	return cmd
}
