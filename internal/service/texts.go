package service

const defaultLanguage = "uz"

type texts struct {
	SharePhone       string
	ShareButton      string
	Verified         string
	PhoneNotFound    string
	OwnContactOnly   string
	AlreadyLinked    string
	NothingToDelete  string
	ReminderToday    string
	ReminderTomorrow string
	PhotoPreview     string
	VoicePreview     string
}

const languagePrompt = "Tilni tanlang / Выберите язык / Choose your language:\n" +
	"/uz - O'zbekcha\n" +
	"/ru - Русский\n" +
	"/en - English"

var localized = map[string]texts{
	"uz": {
		SharePhone:       "Shaxsingizni tasdiqlash uchun telefon raqamingizni yuboring.",
		ShareButton:      "📱 Raqamni yuborish",
		Verified:         "Rahmat, %s! Siz muvaffaqiyatli ro'yxatdan o'tdingiz.",
		PhoneNotFound:    "Bu raqam bo'yicha bemor topilmadi. Iltimos, klinikaga murojaat qiling.",
		OwnContactOnly:   "Iltimos, o'zingizning raqamingizni yuboring.",
		AlreadyLinked:    "Bu bemor boshqa chatga bog'langan. Iltimos, klinikaga murojaat qiling.",
		NothingToDelete:  "O'chirish uchun xabar topilmadi.",
		ReminderToday:    "Hurmatli %s, bugun %s da inyeksiya belgilangan.",
		ReminderTomorrow: "Hurmatli %s, ertaga %s da inyeksiya belgilangan.",
		PhotoPreview:     "📷 Rasm",
		VoicePreview:     "🎤 Ovozli xabar",
	},
	"ru": {
		SharePhone:       "Чтобы подтвердить личность, отправьте свой номер телефона.",
		ShareButton:      "📱 Отправить номер",
		Verified:         "Спасибо, %s! Вы успешно зарегистрированы.",
		PhoneNotFound:    "Пациент с этим номером не найден. Пожалуйста, обратитесь в клинику.",
		OwnContactOnly:   "Пожалуйста, отправьте свой собственный номер.",
		AlreadyLinked:    "Этот пациент уже привязан к другому чату. Пожалуйста, обратитесь в клинику.",
		NothingToDelete:  "Сообщение для удаления не найдено.",
		ReminderToday:    "Уважаемый(ая) %s, сегодня %s у вас запланирована инъекция.",
		ReminderTomorrow: "Уважаемый(ая) %s, завтра %s у вас запланирована инъекция.",
		PhotoPreview:     "📷 Фото",
		VoicePreview:     "🎤 Голосовое сообщение",
	},
	"en": {
		SharePhone:       "Please share your phone number to verify your identity.",
		ShareButton:      "📱 Share phone number",
		Verified:         "Thank you, %s! You are now registered.",
		PhoneNotFound:    "No patient was found for this number. Please contact the clinic.",
		OwnContactOnly:   "Please share your own phone number.",
		AlreadyLinked:    "This patient is linked to another chat. Please contact the clinic.",
		NothingToDelete:  "No message found to delete.",
		ReminderToday:    "Dear %s, you have an injection scheduled today, %s.",
		ReminderTomorrow: "Dear %s, you have an injection scheduled tomorrow, %s.",
		PhotoPreview:     "📷 Photo",
		VoicePreview:     "🎤 Voice message",
	},
}

// textsFor falls back to the default language for unknown codes.
func textsFor(lang string) texts {
	if t, ok := localized[lang]; ok {
		return t
	}
	return localized[defaultLanguage]
}

// SupportedLanguage reports whether lang has translations.
func SupportedLanguage(lang string) bool {
	_, ok := localized[lang]
	return ok
}
