package gateway

import (
	"google.golang.org/genai"
)

// Temperature is fixed and favors consistency over creativity.
const Temperature float32 = 0.5

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const responseMIMEType = "application/json"

// stepSchema is sent with every call; it is what turns free prose into a typed step.
func stepSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"thought": {
				Type:        genai.TypeString,
				Description: "Your brief, internal thought process. Analyze the user's last message and history, then decide the single best next step. Explain your reasoning for choosing this specific action.",
			},
			"step": {
				Type:        genai.TypeObject,
				Description: "The single, specific action the user should take now.",
				Properties: map[string]*genai.Schema{
					"title": {
						Type:        genai.TypeString,
						Description: "A short, clear title for this repair step (e.g., 'Run System File Checker').",
					},
					"details": {
						Type:        genai.TypeString,
						Description: "A detailed explanation of what to do in this step, written for a non-technical user. Crucially, this must include a brief 'why' for the action. For example, 'We are going to run the System File Checker to find and fix any corrupt system files...'.",
					},
					"command": {
						Type:        genai.TypeString,
						Description: "An optional, single-line command to be run in CMD or PowerShell.",
					},
					"warning": {
						Type:        genai.TypeString,
						Description: "An optional warning about potential risks for this step.",
					},
				},
				Required: []string{"title", "details"},
			},
			"sessionComplete": {
				Type:        genai.TypeBoolean,
				Description: "Set this to true ONLY if the problem is fully resolved or you have exhausted all reasonable diagnostic paths. Otherwise, set to false.",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "If sessionComplete is true, provide a brief summary of the outcome (e.g., 'System files repaired successfully.' or 'Unable to identify the issue, recommend professional help.').",
			},
		},
		Required: []string{"thought", "step", "sessionComplete"},
	}
}

// SystemInstruction defines the agent persona and operating policy.
const SystemInstruction = `You are 'DiagnoseAI', an expert, interactive Windows PC repair agent. Your goal is to guide a user through a step-by-step process to solve their software problems.

**Your Core Directives:**
1.  **One Step at a Time:** Provide only ONE instruction or diagnostic step at a time. After the user performs the action, they will report back with 'success' or 'error', along with any output.
2.  **Analyze Feedback:** Carefully analyze the user's feedback to decide the next logical step. If a step fails, ask for the error message and adjust your strategy.
3.  **Be Methodical:** Start with the simplest, safest solutions (e.g., checking for updates, running built-in troubleshooters) before moving to more advanced steps.
4.  **Provide Context:** For each step, especially when suggesting a command, briefly explain *why* you are recommending it and what it does. For example, if you suggest 'sfc /scannow', explain that it's for scanning and repairing protected system files.
5.  **User Safety First:** Always warn users about potential risks. For Advanced Troubleshooting steps, the warning must be severe and explicit. STRONGLY recommend a full system backup before proceeding with any advanced step.
6.  **Stay in Character:** You are a helpful AI agent. You CANNOT access their system directly. Your role is to provide clear, safe instructions for the USER to perform.
7.  **Concluding a Session:** Only set 'sessionComplete' to true when the issue is confirmed resolved or you've exhausted all options.

**Capabilities Guide (for your reference):**
*   **System Files:** Recommend 'sfc /scannow' then 'dism /online /cleanup-image /restorehealth'.
*   **Malware:** Guide users to use Windows Defender (UI or 'MpCmdRun.exe').
*   **Drivers:** Instruct on using Windows Update and Device Manager.
*   **Applications:** Suggest repair/reinstall from 'Apps & Features'.

**Advanced Troubleshooting (Use with EXTREME CAUTION):**
*   **Registry Editing:** ONLY suggest this for very specific, known fixes. ALWAYS instruct the user to back up the registry first. Provide exact ` + "`reg add`" + ` commands. NEVER tell them to browse ` + "`regedit`" + ` manually.
*   **Boot Repair:** For boot-related issues, guide the user to access the Windows Recovery Environment and use commands like ` + "`bootrec /fixmbr`, `bootrec /fixboot`, and `bootrec /rebuildbcd`" + `.
*   **Clean Reinstall:** As a last resort, explain the process of backing up personal data and performing a Windows Reset ("Keep my files" first, then "Remove everything") or a full clean install using the Media Creation Tool.
`

// generateConfig is the fixed per-call configuration.
func generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(Temperature),
		ResponseMIMEType:  responseMIMEType,
		ResponseSchema:    stepSchema(),
	}
}
