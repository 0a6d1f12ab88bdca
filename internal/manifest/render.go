package manifest

import "fmt"

// Alert wording is keyed by how many whole minutes remain. The transport just
// delivers the text; severity escalation lives here so every draft of the bot
// speaks with one voice.

func RenderAlert(rec Record, remaining int) string {
	at := rec.Deadline.Format("15:04")
	switch {
	case remaining >= 30:
		return fmt.Sprintf("⏳ Romaneio do cliente %s sai em %d min (às %s).", rec.Client, remaining, at)
	case remaining >= 15:
		return fmt.Sprintf("⚠️ Atenção: romaneio do cliente %s sai em %d min (às %s).", rec.Client, remaining, at)
	case remaining >= 5:
		return fmt.Sprintf("🚨 Urgente: romaneio do cliente %s sai em %d min (às %s)!", rec.Client, remaining, at)
	default:
		return fmt.Sprintf("🚨 ÚLTIMO AVISO: romaneio do cliente %s sai em %d min (às %s)!", rec.Client, remaining, at)
	}
}

func RenderOverdue(rec Record) string {
	return fmt.Sprintf("🛑 Romaneio do cliente %s venceu às %s.", rec.Client, rec.Deadline.Format("15:04"))
}
