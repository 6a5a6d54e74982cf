package debugedit

import (
	"fmt"
	"os"

	"github.com/Manu343726/debugedit/pkg/arscan"
	"github.com/spf13/cobra"
)

var classifyArCmd = &cobra.Command{
	Use:   "classify-ar FILE",
	Short: "Report whether an ar archive has a member worth running debugedit on",
	Long: `classify-ar mirrors debugedit-classify-ar.c: it exits zero only when
FILE is an ELF archive, at least one member is an ELF object with
.debug_*/.zdebug_* sections, and (if --max-members is given) the
archive has no more than that many members.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassifyAr,
}

var (
	classifyArMaxMembers int
	classifyArQuiet      bool
	classifyArVerbose    bool
)

func init() {
	flags := classifyArCmd.Flags()
	flags.IntVarP(&classifyArMaxMembers, "max-members", "m", -1, "maximum number of archive members to accept (zero or negative: unlimited)")
	flags.BoolVarP(&classifyArQuiet, "quiet", "q", false, "don't show any output, not even errors")
	flags.BoolVarP(&classifyArVerbose, "verbose", "v", false, "show extra output on success too")
}

func runClassifyAr(cmd *cobra.Command, args []string) error {
	verbosity := arscan.Errors
	if classifyArQuiet {
		verbosity = arscan.Quiet
	} else if classifyArVerbose {
		verbosity = arscan.Verbose
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		if verbosity >= arscan.Errors {
			colorFormatViolation.Fprintf(cmd.ErrOrStderr(), "cannot open %s: %v\n", path, err)
		}
		return err
	}

	res, err := arscan.ClassifyArchive(data, classifyArMaxMembers)
	if err != nil {
		if verbosity >= arscan.Errors {
			colorFormatViolation.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
		}
		return err
	}

	if !res.HasDebugMember {
		if verbosity >= arscan.Verbose {
			colorConstraintViolation.Fprintf(cmd.ErrOrStderr(), "no member with debug sections: %s\n", path)
		}
		return fmt.Errorf("no member with debug sections: %s", path)
	}

	if res.TooManyMembers {
		if verbosity >= arscan.Verbose {
			colorConstraintViolation.Fprintf(cmd.ErrOrStderr(), "too many members (%d): %s\n", res.MemberCount, path)
		}
		return fmt.Errorf("too many members (%d): %s", res.MemberCount, path)
	}

	if verbosity >= arscan.Verbose {
		colorInfo.Fprintf(cmd.OutOrStdout(), "found member(s) with debug sections: %s\n", path)
	}
	return nil
}
