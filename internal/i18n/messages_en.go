package i18n

// englishMessages contains all English translations
var englishMessages = map[string]string{
	// Verdict responses
	"verdict.force_added":     "This was forcefully added, I hope you know what you're doing...",
	"verdict.duplicate":       "Already in the playlist (added by %s), everyone mock this duplicate",
	"verdict.duplicate_test":  "Try again bucko, already added by %s",
	"verdict.region_blocked":  "Track not available in %s, sorry.",
	"verdict.content_blocked": "Bad vibes from %s, this one stays out.",
	"verdict.remote_failure":  "Couldn't reach Spotify for that one, try again later.",
	"verdict.unparseable":     "I think that was a spotify link but I couldn't figure it out",

	// Bot notices
	"bot.started":            "I'm back 😎",
	"bot.milestone_playlist": "This was song #%d 🙌",
	"bot.milestone_user":     "That was your #%d song, %s 🎉",
	"bot.unknown_command":    "I think that was supposed to be a command, try !commands",
	"bot.not_moderator":      "Only moderators can do that.",

	// Commands
	"command.blame":            "You can blame %s for %s - %s",
	"command.blame_self":       "You added %s - %s yourself, double blame",
	"command.blame_none":       "Nobody added that one, nobody to blame",
	"command.praise":           "Praise be to %s for %s - %s 🙏",
	"command.praise_self":      "No praising yourself",
	"command.praise_none":      "Nobody added that one, nobody to praise",
	"command.need_track":       "Link a track for that to work",
	"command.list_added":       "%s is now on the list with %s%s",
	"command.list_existing":    "%s is already on the list with %s",
	"command.list_defaulted":   " (defaulted)",
	"command.list_usage":       "Usage: !onTheList <artist link or id> [rating between 0 and 1]",
	"command.check_artist":     "%s: %d followers, popularity %d, genres: %s",
	"command.check_artist_on":  "%s is on the list with %s",
	"command.no_artist":        "I couldn't find an artist in that",
	"command.data_caption":     "Everything so far, %d entries",
	"command.data_unsupported": "Can't send files here, grab it from the web endpoint instead (%d entries)",
	"command.playlist_sample":  "Some picks from the playlist:\n%s",
	"command.playlist_empty":   "Nothing in the playlist yet",
	"command.no_playlist":      "This chat isn't linked to a playlist",
	"command.validate_ok":      "Playlist and history agree on all %d tracks",
	"command.validate_missing": "%d playlist tracks were never logged:\n%s",
	"command.commands":         "Commands: %s",
	"command.refresh":          "Refreshing, back in a moment",
	"command.kill":             "Goodbye 👋",

	// Statistics
	"stats.header": "Top %s:",
	"stats.usage":  "Usage: !stats <%s> [reverse] [follower]",
	"stats.empty":  "No data yet",

	// Errors
	"error.generic": "Something went wrong, please try again.",
	"error.remote":  "Spotify isn't answering right now, try again later.",
}
