package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Spanish

	message.SetString(lang, keyStatusChangedSubject, "Novedades sobre tu postulación para %s")
	message.SetString(lang, keyStatusChangedBody, "Estimado postulante,\n\nEl estado de tu postulación se actualizó a: %s.\n\nSaludos,\nEquipo de Job Board")
}
