package commands

// Field is one name/value row of an embed.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
}

func (e *Embed) add(name, value string, inline bool) *Embed {
	e.Fields = append(e.Fields, Field{Name: name, Value: value, Inline: inline})
	return e
}

// Reply is what a command sends back: plain text, an embed, or both.
type Reply struct {
	Text  string
	Embed *Embed
}

func text(s string) Reply { return Reply{Text: s} }

func card(e *Embed) Reply { return Reply{Embed: e} }

const (
	colorGreen  = 0x00ff00
	colorBlue   = 0x0099ff
	colorSky    = 0x00aaff
	colorPurple = 0x9966ff
	colorOrange = 0xff6600
	colorAmber  = 0xffaa00
)

// truncate shortens s to n runes, adding "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
