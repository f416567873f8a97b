// Package i18n provides the operator-facing message catalogs for the
// console's two languages, French and Arabic. French is the fallback.
// Catalogs are compiled in; the console does not load translation files.
package i18n

import "golang.org/x/text/language"

var supported = []language.Tag{
	language.French, // default
	language.Arabic,
}

var matcher = language.NewMatcher(supported)

// Match resolves an Accept-Language header to a supported tag.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.French
	}
	_, index, _ := matcher.Match(tags...)
	return supported[index]
}

// RTL reports whether a tag renders right-to-left.
func RTL(tag language.Tag) bool {
	base, _ := tag.Base()
	return base.String() == "ar"
}

var catalogs = map[language.Tag]map[string]string{
	language.French: {
		"errors.network":         "Erreur de connexion au serveur",
		"errors.generic":         "Une erreur est survenue",
		"errors.sessionExpired":  "Session expirée, veuillez vous reconnecter",
		"errors.accessDenied":    "Accès refusé",
		"errors.tooManyRequests": "Trop de requêtes, veuillez patienter",
		"errors.server":          "Erreur interne du serveur",
		"analysis.created":       "Analyse créée avec succès",
		"analysis.sent":          "Analyse envoyée avec succès via WhatsApp",
		"analysis.deleted":       "Analyse supprimée avec succès",
		"analysis.retried":       "Analyse renvoyée avec succès",
		"batch.prepareFailed":    "Erreur lors de la préparation de l'envoi collectif",
		"batch.nothingChecked":   "Aucun destinataire sélectionné",
		"batch.queued":           "%d message(s) mis en file d'attente",
		"batch.alreadySent":      "Déjà envoyé",
		"batch.invalidPhone":     "Format de numéro mauritanien invalide (attendu: +222XXXXXXXX)",
		"upload.tooLarge":        "Le fichier dépasse la taille maximale de 10 Mo",
		"upload.notPDF":          "Seuls les fichiers PDF sont acceptés",
	},
	language.Arabic: {
		"errors.network":         "خطأ في الاتصال بالخادم",
		"errors.generic":         "حدث خطأ ما",
		"errors.sessionExpired":  "انتهت الجلسة، يرجى تسجيل الدخول مجددا",
		"errors.accessDenied":    "تم رفض الوصول",
		"errors.tooManyRequests": "طلبات كثيرة جدا، يرجى الانتظار",
		"errors.server":          "خطأ داخلي في الخادم",
		"analysis.created":       "تم إنشاء التحليل بنجاح",
		"analysis.sent":          "تم إرسال التحليل بنجاح عبر واتساب",
		"analysis.deleted":       "تم حذف التحليل بنجاح",
		"analysis.retried":       "تمت إعادة إرسال التحليل بنجاح",
		"batch.prepareFailed":    "خطأ أثناء تحضير الإرسال الجماعي",
		"batch.nothingChecked":   "لم يتم اختيار أي مستلم",
		"batch.queued":           "تم وضع %d رسالة في قائمة الانتظار",
		"batch.alreadySent":      "تم الإرسال سابقا",
		"batch.invalidPhone":     "صيغة رقم موريتاني غير صالحة (المتوقع: +222XXXXXXXX)",
		"upload.tooLarge":        "يتجاوز الملف الحجم الأقصى 10 ميغابايت",
		"upload.notPDF":          "تقبل ملفات PDF فقط",
	},
}

// T resolves a catalog key for a tag, falling back to French and finally to
// the key itself so missing entries stay visible instead of blank.
func T(tag language.Tag, key string) string {
	if msgs, ok := catalogs[tag]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := catalogs[language.French][key]; ok {
		return msg
	}
	return key
}
