package i18n

// berneseGermanMessages contains all Bernese Swiss German (Bärndütsch) translations
var berneseGermanMessages = map[string]string{
	// Verdict responses
	"verdict.force_added":     "Das isch mit Gwaut drin, hoffentlech weisch was de machsch...",
	"verdict.duplicate":       "Isch scho i dr Playlist (vo %s), aui zäme uslache bitte",
	"verdict.duplicate_test":  "Nomau probiere, Chlinä, het %s scho dinne",
	"verdict.region_blocked":  "Das Lied git's i %s nid, sorry.",
	"verdict.content_blocked": "Schlächti Vibes vo %s, das blibt dusse.",
	"verdict.remote_failure":  "Ha Spotify nid erreicht, probier's speter nomau.",
	"verdict.unparseable":     "Das gseht us wie ne Spotify-Link, aber i bi nid drus cho",

	// Bot notices
	"bot.started":            "Bi wider da 😎",
	"bot.milestone_playlist": "Das isch z'Lied #%d gsi 🙌",
	"bot.milestone_user":     "Das isch dis Lied #%d gsi, %s 🎉",
	"bot.unknown_command":    "Das hätt glaub e Befäu söue sii, probier !commands",
	"bot.not_moderator":      "Das dörfe nume d Moderatore.",

	// Commands
	"command.blame":            "Das hesch %s z'verdanke: %s - %s",
	"command.blame_self":       "%s - %s hesch säuber dinne, doppleti Schand",
	"command.blame_none":       "Das het niemer dinne, niemer z'tadle",
	"command.praise":           "Merci viumau %s für %s - %s 🙏",
	"command.praise_self":      "Säuber lobe giut nid",
	"command.praise_none":      "Das het niemer dinne, niemer z'lobe",
	"command.need_track":       "Schick e Link vomne Lied derzue",
	"command.list_added":       "%s isch jetz uf dr Lischte mit %s%s",
	"command.list_existing":    "%s isch scho uf dr Lischte mit %s",
	"command.list_defaulted":   " (Standard)",
	"command.list_usage":       "So geit's: !onTheList <Künschtler-Link oder ID> [Wärt zwüsche 0 und 1]",
	"command.check_artist":     "%s: %d Follower, Popularität %d, Genres: %s",
	"command.check_artist_on":  "%s isch uf dr Lischte mit %s",
	"command.no_artist":        "Ha kei Künschtler gfunde",
	"command.data_caption":     "Aus bis jetz, %d Iträg",
	"command.data_unsupported": "Chan hie kei Dateie schicke, hol se vom Webserver (%d Iträg)",
	"command.playlist_sample":  "Es paar Lieder us dr Playlist:\n%s",
	"command.playlist_empty":   "D Playlist isch no läär",
	"command.no_playlist":      "Dä Chat het kei Playlist",
	"command.validate_ok":      "Playlist und Verlouf stimme überi, %d Lieder",
	"command.validate_missing": "%d Lieder i dr Playlist sy nie ufgschribe worde:\n%s",
	"command.commands":         "Befäu: %s",
	"command.refresh":          "Starte nöi, bi grad wider da",
	"command.kill":             "Ade 👋",

	// Statistics
	"stats.header": "Top %s:",
	"stats.usage":  "So geit's: !stats <%s> [reverse] [follower]",
	"stats.empty":  "No kei Date",

	// Errors
	"error.generic": "Öppis isch schief gloffe. Probier's haut nomau, bitte.",
	"error.remote":  "Spotify git grad kei Antwort, probier's speter nomau.",
}
