package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Word    = color.New(color.FgMagenta)
	Prompt  = color.New(color.FgGreen, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)

	// Story is the text already told, Segment the part being revealed.
	Story   = color.New(color.FgWhite)
	Segment = color.New(color.FgHiWhite, color.Bold)
)
