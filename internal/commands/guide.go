package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

func (d *Dispatcher) handleHelpBot(ctx context.Context, key models.ConversationKey, _ string) []Reply {
	return d.handleGuide(ctx, key, "")
}

func (d *Dispatcher) handleGuide(_ context.Context, _ models.ConversationKey, args string) []Reply {
	p := d.prefix
	section := strings.ToLower(strings.TrimSpace(args))

	switch section {
	case "":
		e := &Embed{
			Title:       "🤖 AI Discord Bot - Complete Guide",
			Description: "Multiple characters, multiple model providers, one channel at a time.",
			Color:       colorGreen,
			Footer:      fmt.Sprintf("Use %sguide <section> for details on each area", p),
		}
		e.add("🎭 **Characters**", fmt.Sprintf("Switch between %d built-in personalities, each with its own model and parameters\n`%sguide characters`", len(personas.BuiltIns()), p), false)
		e.add("💬 **Chat**", fmt.Sprintf("Talk directly in #%s or use commands anywhere\n`%sguide chat`", d.channelName, p), false)
		e.add("⚙️ **Customization**", fmt.Sprintf("Custom characters, system prompts and presets\n`%sguide custom`", p), false)
		e.add("📚 **Help Sections**", fmt.Sprintf("`%[1]sguide characters`\n`%[1]sguide chat`\n`%[1]sguide custom`\n`%[1]sguide examples`", p), false)
		return []Reply{card(e)}

	case "characters":
		e := &Embed{
			Title:       "🎭 Character System",
			Description: "Each channel remembers its active character",
			Color:       colorPurple,
		}
		e.add("**Character Commands**", fmt.Sprintf("`%[1]scharacter` - Show current character\n`%[1]scharacter <name>` - Switch character\n`%[1]scharacters` - List characters\n`%[1]smodels` - List models\n`%[1]sswitch_model <char> <model>` - Change a character's model", p), false)
		var lines []string
		for _, b := range personas.BuiltIns() {
			lines = append(lines, fmt.Sprintf("**%s** (%s) - %s", b.ID, b.Name, b.Model))
		}
		e.add("**🔮 Built-in Characters**", strings.Join(lines, "\n"), false)
		e.add("**Parameters**", "• **Temperature** 0.0 (consistent) to 2.0 (very creative)\n• **Max tokens** 1 to 4000 bounds reply length", false)
		return []Reply{card(e)}

	case "chat":
		e := &Embed{
			Title:       "💬 Chat Commands",
			Description: "How to talk to the bot",
			Color:       colorSky,
			Footer:      "Each channel keeps its own history",
		}
		e.add(fmt.Sprintf("**🔥 AI Channel (#%s)**", d.channelName), fmt.Sprintf("Just type. Commands still work if you start with `%s`", p), false)
		e.add("**📝 Other Channels**", fmt.Sprintf("`%[1]schat <message>` - Chat\n`%[1]sreset` - Clear history\n`%[1]sfollow <message>` - Follow up on the last reply\n`%[1]smore` - Continue the last reply\n`%[1]susage` - Token usage", p), false)
		e.add("**💡 Tips**", "• The bot remembers the last 20 messages per channel\n• Long replies are split automatically", false)
		return []Reply{card(e)}

	case "custom":
		e := &Embed{
			Title:       "⚙️ Customization",
			Description: "Characters and prompts are saved across restarts",
			Color:       colorOrange,
		}
		e.add("**🛠️ Create Characters**", fmt.Sprintf("`%[1]screate_character <id> \"Name\" <temp> <tokens> <model> \"Description | System prompt\"`\n`%[1]sdelete_character <id>` (built-ins cannot be deleted)", p), false)
		e.add("**📋 System Prompts**", fmt.Sprintf("`%[1]ssystem <prompt>` - Set a custom prompt\n`%[1]spreset [name]` - Use a preset\n`%[1]sprompt` - Show the current prompt", p), false)
		names := make([]string, 0)
		for _, pr := range personas.Presets() {
			names = append(names, pr.Name)
		}
		e.add("**🎨 Presets**", strings.Join(names, ", "), false)
		return []Reply{card(e)}

	case "examples":
		e := &Embed{Title: "📚 Usage Examples", Color: colorAmber}
		e.add("**🎭 Switching**", fmt.Sprintf("```\n%[1]scharacter scholar\nWhat is quantum physics?\n%[1]scharacter creative\nWrite a poem about stars```", p), false)
		e.add("**🔧 Custom Characters**", fmt.Sprintf("```\n%[1]screate_character pirate \"Captain Jack\" 0.9 500 grok-beta \"A swashbuckling pirate | You are Captain Jack.\"\n%[1]scharacter pirate\n%[1]sswitch_model pirate claude-3-opus```", p), false)
		e.add("**🔄 Follow-ups**", fmt.Sprintf("```\n%[1]sfollow Can you give me some examples?\n%[1]smore```", p), false)
		return []Reply{card(e)}
	}

	return []Reply{text(fmt.Sprintf("Unknown help section: `%s`. Use `%sguide` to see available sections.", section, p))}
}
