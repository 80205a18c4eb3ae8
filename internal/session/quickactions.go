package session

// QuickAction is a preset problem statement offered as a one-click start.
type QuickAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

var quickActions = []QuickAction{
	{
		ID:     "system-files",
		Label:  "Repair System Files",
		Prompt: "My computer is behaving strangely, and I suspect system files might be corrupted. Please provide steps to scan and repair them.",
	},
	{
		ID:     "virus-scan",
		Label:  "Scan for Viruses",
		Prompt: "I think my PC might have a virus. Can you give me a guide on how to perform a deep scan and remove any threats?",
	},
	{
		ID:     "drivers",
		Label:  "Update Drivers",
		Prompt: "Some of my hardware (like graphics card or Wi-Fi) is not working correctly. I need instructions on how to check for and install driver updates.",
	},
	{
		ID:     "advanced",
		Label:  "Advanced Issues",
		Prompt: "I am an advanced user and I'm facing a complex issue that might require boot repair, registry editing, or even an OS reinstall. Please guide me through advanced troubleshooting steps.",
	},
}

// QuickActions returns the presets in display order.
func QuickActions() []QuickAction {
	out := make([]QuickAction, len(quickActions))
	copy(out, quickActions)
	return out
}

// LookupQuickAction finds a preset by ID.
func LookupQuickAction(id string) (QuickAction, bool) {
	for _, qa := range quickActions {
		if qa.ID == id {
			return qa, true
		}
	}
	return QuickAction{}, false
}

// Disclaimer is shown alongside every session.
const Disclaimer = "Disclaimer: This tool provides AI-generated suggestions. Always back up your data before attempting any repairs. Use at your own risk."

var commandHelp = []string{
	"Open the Start Menu: click the Windows icon in the bottom-left corner.",
	"Search for Terminal: type Terminal, cmd, or PowerShell into the search bar. Terminal is recommended.",
	"Run as Administrator: right-click the app icon and select \"Run as administrator\". Many system commands need it.",
	"Paste and Run Command: copy the command from a repair step, paste it into the terminal window, then press Enter.",
}

// CommandHelp returns the steps for running a suggested command, in order.
func CommandHelp() []string {
	out := make([]string, len(commandHelp))
	copy(out, commandHelp)
	return out
}
