package engine

// Outbound prompts are data handed to the transport layer: text plus the
// valid quick-reply options for the step, never transport behavior.

type Button struct {
	Label string
	Data  string // callback token; empty for plain quick replies
}

type Keyboard struct {
	Inline  bool
	OneTime bool
	Rows    [][]Button
}

type Message struct {
	ChatID   int64
	Text     string
	Keyboard *Keyboard
}

func reply(ev Event, text string) Message {
	return Message{ChatID: ev.ChatID, Text: text}
}

func replyKb(ev Event, text string, kb *Keyboard) Message {
	return Message{ChatID: ev.ChatID, Text: text, Keyboard: kb}
}

func inlineRows(rows ...[]Button) *Keyboard {
	return &Keyboard{Inline: true, Rows: rows}
}

func inlineButton(label string, cb Callback) Button {
	return Button{Label: label, Data: cb.Token()}
}
