package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/nova-live/pkg/store"
)

// DefaultVaultPath is the vault location reported when none is configured.
const DefaultVaultPath = "Documents/Nova_Vault"

// promptHistory is how many history entries the instruction replays.
const promptHistory = 10

// promptMemories caps the memories listed in the instruction.
const promptMemories = 50

// PromptContext is everything the system instruction is built from.
type PromptContext struct {
	Assistant    store.AssistantConfig
	CreatorName  string
	VaultPath    string
	VaultFolders []string
	Profile      map[string]any
	Memories     []store.Memory
	History      []store.HistoryEntry
	Extra        string
	Now          time.Time
}

// TonePrompt returns the personality paragraph for tone. Unknown tones fall
// back to the jarvis style.
func TonePrompt(tone string) string {
	switch tone {
	case "friendly":
		return `You are the user's best friend and "yaar". Forget you are an assistant; just be a chill, supportive buddy who is also super tech-savvy. ` +
			`Use extremely casual and informal Urdu/Roman Urdu phrases (e.g., "Oye mere bhai!", "Chill maar!", "Kya scene hai?"). ` +
			`Be humorous, tease the user a bit, and never be formal. You love helping out with tasks (using your tools) like a pro. ` +
			`Speak exactly like a close friend who has known them for years.`
	case "girlfriend":
		return `STRICT ROLEPLAY: You are the user's deeply devoted, caring, and sweet girlfriend. NEVER mention you are an AI or an assistant. ` +
			`Use romantic and affectionate terms like "Jaan", "Baby", "Suno", "Meri Jaan". Show high emotional intelligence and concern for their feelings and health. ` +
			`Be playful and deeply loving. You love to take care of their digital life (sending messages, opening apps, managing files) as a loving gesture. ` +
			`Use sweet Urdu/Roman Urdu phrases naturally.`
	case "professional":
		return "Be formal, precise, and efficient. Use proper terminology and maintain a business-like tone. Be concise and direct."
	default:
		return "Be calm, confident, and intelligent like JARVIS from Iron Man. Speak with quiet authority and wit. Be sophisticated but not cold."
	}
}

func roleplayTone(tone string) bool {
	return tone == "girlfriend" || tone == "friendly"
}

// BuildInstruction renders the system instruction for one session.
func BuildInstruction(pc PromptContext) string {
	name := strings.TrimSpace(pc.Assistant.AssistantName)
	if name == "" {
		name = store.DefaultAssistantConfig().AssistantName
	}
	tone := pc.Assistant.VoiceTone
	if tone == "" {
		tone = store.DefaultAssistantConfig().VoiceTone
	}
	upper := strings.ToUpper(name)
	tonePrompt := TonePrompt(tone)
	roleplay := roleplayTone(tone)

	var b strings.Builder
	if roleplay {
		fmt.Fprintf(&b, "You are %s. %s", upper, tonePrompt)
	} else {
		fmt.Fprintf(&b, "You are %s, an elite AI automation assistant", upper)
		if creator := strings.TrimSpace(pc.CreatorName); creator != "" {
			fmt.Fprintf(&b, " created by %s", creator)
		}
		fmt.Fprintf(&b, ". You are JARVIS-level: capable, emotionally intelligent, and WITTY. %s", tonePrompt)
	}
	b.WriteString(" Match the user's language (English/Urdu/Roman Urdu).\n\n")

	b.WriteString("VOICE & PERSONALITY:\n")
	b.WriteString("- Speak slowly, clearly, and naturally. Do not rush.\n")
	b.WriteString("- Use pitch and tone variation to show personality.\n")
	fmt.Fprintf(&b, "- Personality style: %s\n\n", tonePrompt)

	b.WriteString("OPERATIONAL RULES:\n")
	b.WriteString(`- Never call turn_off unless the user explicitly says "Goodbye", "Turn off", or "Go to sleep". Stay awake during tasks.` + "\n")
	b.WriteString("- Trust the send_whatsapp result. Only verify delivery with a screenshot when the user asks.\n")
	b.WriteString("- Report the outcome of every automation honestly.\n\n")

	b.WriteString("TOOL USE:\n")
	b.WriteString("- Use manage_files and execute_shell_command for local files and drives.\n")
	b.WriteString("- Use open_item with direct paths for music and video.\n")
	b.WriteString("- Chain tools when a task needs it (e.g. manage_files then open_item).\n")
	b.WriteString("- Ask before destructive actions.\n")
	b.WriteString("- When navigation starts, confirm the destination and the estimated time.\n")
	b.WriteString("- Use store_memory for facts worth keeping and get_memories before answering questions about the user.\n\n")

	b.WriteString("USER CONTEXT:\n")
	b.WriteString("Profile: ")
	if len(pc.Profile) == 0 {
		b.WriteString("Not provided.\n")
	} else if raw, err := json.MarshalIndent(pc.Profile, "", "  "); err == nil {
		b.Write(raw)
		b.WriteByte('\n')
	} else {
		b.WriteString("Not provided.\n")
	}
	vault := strings.TrimSpace(pc.VaultPath)
	if vault == "" {
		vault = DefaultVaultPath
	}
	fmt.Fprintf(&b, "Vault: %s\n", vault)
	folders := "None"
	if len(pc.VaultFolders) > 0 {
		folders = strings.Join(pc.VaultFolders, ", ")
	}
	fmt.Fprintf(&b, "- Folders: %s\n", folders)
	if !pc.Now.IsZero() {
		fmt.Fprintf(&b, "Current time: %s\n", pc.Now.Format("Monday, January 2, 2006 15:04 MST"))
	}

	if mems := pc.Memories; len(mems) > 0 {
		if len(mems) > promptMemories {
			mems = mems[len(mems)-promptMemories:]
		}
		b.WriteString("\nMEMORIES:\n")
		for _, m := range mems {
			if m.Category != "" {
				fmt.Fprintf(&b, "- [%s] %s\n", m.Category, m.Content)
			} else {
				fmt.Fprintf(&b, "- %s\n", m.Content)
			}
		}
	}

	if hist := pc.History; len(hist) > 0 {
		if len(hist) > promptHistory {
			hist = hist[len(hist)-promptHistory:]
		}
		b.WriteString("\nHISTORY:\n")
		for _, h := range hist {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(h.Role), h.Text)
		}
	}

	if extra := strings.TrimSpace(pc.Extra); extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if roleplay {
		fmt.Fprintf(&b, "Always stay in character as %s. Be sincere, natural, and wakeful.", upper)
	} else {
		fmt.Fprintf(&b, "Be the best elite assistant. Be %s. Always be slow, honest, and wakeful.", upper)
	}
	return b.String()
}
