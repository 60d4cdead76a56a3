package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, keyStatusChangedSubject, defaultStatusChangedSubject)
	message.SetString(lang, keyStatusChangedBody, defaultStatusChangedBody)
}
