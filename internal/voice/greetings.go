package voice

import "strings"

var greetings = map[string]string{
	"en":    "Hi! I'm listening. How are you feeling today?",
	"en-gb": "Hi! I'm listening. How are you feeling today?",
	"en-au": "Hi! I'm listening. How are you feeling today?",
	"es":    "¡Hola! Estoy escuchando. ¿Cómo te sientes hoy?",
	"fr":    "Bonjour ! Je vous écoute. Comment vous sentez-vous aujourd'hui ?",
	"de":    "Hallo! Ich höre zu. Wie fühlen Sie sich heute?",
	"pt":    "Olá! Estou ouvindo. Como você está se sentindo hoje?",
	"it":    "Ciao! Ti ascolto. Come ti senti oggi?",
	"ja":    "こんにちは！聞いていますよ。今日の調子はどうですか？",
	"ko":    "안녕하세요! 듣고 있어요. 오늘 기분이 어떠세요?",
	"zh":    "你好！我在听。你今天感觉怎么样？",
	"hi":    "नमस्ते! मैं सुन रहा हूँ। आज आप कैसा महसूस कर रहे हैं?",
	"ar":    "مرحبًا! أنا أستمع. كيف تشعر اليوم؟",
	"ru":    "Привет! Я слушаю. Как вы себя чувствуете сегодня?",
	"nl":    "Hallo! Ik luister. Hoe voel je je vandaag?",
	"pl":    "Cześć! Słucham. Jak się dziś czujesz?",
	"ta":    "வணக்கம்! நான் கேட்டுக்கொண்டிருக்கிறேன். இன்று நீங்கள் எப்படி உணர்கிறீர்கள்?",
}

var recognitionLocales = map[string]string{
	"en": "en-US", "en-gb": "en-GB", "en-au": "en-AU",
	"es": "es-ES", "fr": "fr-FR", "de": "de-DE", "pt": "pt-BR",
	"it": "it-IT", "ja": "ja-JP", "ko": "ko-KR", "zh": "zh-CN",
	"hi": "hi-IN", "ar": "ar-SA", "ru": "ru-RU", "nl": "nl-NL", "pl": "pl-PL",
	"ta": "ta-IN",
}

// Greeting returns the opening line for a language, falling back to English.
func Greeting(language string) string {
	if g, ok := greetings[strings.ToLower(language)]; ok {
		return g
	}
	return greetings["en"]
}

// RecognitionLocale maps a language code to the locale a speech recognizer expects.
func RecognitionLocale(language string) string {
	if l, ok := recognitionLocales[strings.ToLower(language)]; ok {
		return l
	}
	return "en-US"
}
