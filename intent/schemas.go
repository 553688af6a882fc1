package intent

// floatPtr is a small helper for the ParameterSchema.Min/Max fields, which
// are pointers so "no bound" can be distinguished from "bound at zero".
func floatPtr(f float64) *float64 { return &f }

// DefaultSchemas returns the closed-set intent catalog for a Registry
// (spec.md §4.4), grounded on
// intent_classifier.py's _initialize_intent_schemas: one Schema per
// intent with its recognition keywords/patterns, its routed service and
// tool, and the parameters extract_parameters/validate_parameters expect.
// Callers register it with RegisterSchema; it is not applied automatically
// so tests and alternate deployments can supply a narrower catalog.
func DefaultSchemas() []Schema {
	return []Schema{
		{
			Intent: AudioControl,
			Keywords: []string{
				"play", "music", "song", "track", "album", "artist", "band",
				"volume", "loud", "quiet", "mute", "unmute", "louder", "quieter",
				"pause", "stop", "resume", "next", "previous", "skip",
				"headphones", "speakers", "bluetooth", "audio", "sound",
			},
			Patterns: []string{
				`(?i)\b(play|pause|stop|volume|mute|unmute)\b`,
				`(?i)\b(music|song|track|audio|sound)\b`,
				`(?i)\b(headphones|speakers|bluetooth)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"play", "pause", "stop", "volume", "skip", "switch"}, Description: "Audio control action"},
				{Name: "target", Type: TypeString, Description: "Target (song, artist, device, etc.)"},
				{Name: "level", Type: TypeInteger, Min: floatPtr(0), Max: floatPtr(100), Description: "Volume level (0-100)"},
				{Name: "device", Type: TypeString, Choices: []string{"headphones", "speakers", "bluetooth"}, Description: "Audio output device"},
			},
			Service: "ai-audio-assistant",
			Tool:    "control_audio",
			Examples: []string{
				"play music", "turn up the volume", "pause the song",
				"switch to headphones", "play jazz music",
			},
		},
		{
			Intent: SystemControl,
			Keywords: []string{
				"open", "close", "launch", "run", "execute", "start", "stop",
				"application", "app", "program", "software", "process", "task",
				"shutdown", "restart", "reboot", "sleep", "hibernate",
				"file", "folder", "directory", "document",
			},
			Patterns: []string{
				`(?i)\b(open|close|launch|run|start|stop|kill)\b`,
				`(?i)\b(application|app|program|software)\b`,
				`(?i)\b(shutdown|restart|reboot)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"open", "close", "launch", "run", "start", "stop", "kill"}, Description: "System control action"},
				{Name: "target", Type: TypeString, Required: true, Description: "Target application or process"},
				{Name: "path", Type: TypeFilePath, Description: "File or directory path"},
			},
			Service: "ai-platform-linux",
			Tool:    "execute_command",
			Examples: []string{
				"open browser", "launch calculator", "close all windows", "run python script",
			},
		},
		{
			Intent: SmartHome,
			Keywords: []string{
				"lights", "light", "lamp", "bulb", "brightness", "dim",
				"temperature", "thermostat", "heating", "cooling", "ac",
				"lock", "unlock", "door", "window", "security", "alarm",
				"camera", "sensor", "motion", "detection",
			},
			Patterns: []string{
				`(?i)\b(lights?|lamp|bulb|brightness|dim)\b`,
				`(?i)\b(temperature|thermostat|heating|cooling)\b`,
				`(?i)\b(lock|unlock|door|window|security)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "device_type", Type: TypeString, Required: true, Choices: []string{"lights", "temperature", "security", "camera"}, Description: "Type of smart home device"},
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"on", "off", "dim", "brighten", "lock", "unlock", "set"}, Description: "Action to perform"},
				{Name: "location", Type: TypeString, Description: "Room or location"},
				{Name: "value", Type: TypeInteger, Description: "Value for dimming or temperature"},
			},
			Service: "ai-home-automation",
			Tool:    "control_device",
			Examples: []string{
				"turn on the lights", "dim the bedroom lights", "set temperature to 72", "lock the front door",
			},
		},
		{
			Intent: Communication,
			Keywords: []string{
				"send", "message", "text", "sms", "email", "call", "phone",
				"whatsapp", "telegram", "slack", "discord", "notify",
				"contact", "person", "friend", "family",
			},
			Patterns: []string{
				`(?i)\b(send|message|text|call|phone|email)\b`,
				`(?i)\b(whatsapp|telegram|slack|discord)\b`,
				`(?i)\b(contact|person|friend|family)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"send", "call", "message", "notify"}, Description: "Communication action"},
				{Name: "recipient", Type: TypeString, Required: true, Description: "Recipient name or contact"},
				{Name: "message", Type: TypeString, Description: "Message content"},
				{Name: "platform", Type: TypeString, Choices: []string{"sms", "email", "whatsapp", "telegram"}, Description: "Communication platform"},
			},
			Service: "ai-communications",
			Tool:    "send_message",
			Examples: []string{
				"send message to John", "call mom", "text my friend", "send email to boss",
			},
		},
		{
			Intent: Navigation,
			Keywords: []string{
				"directions", "navigate", "route", "map", "location", "address",
				"drive", "walk", "travel", "destination", "gps", "traffic",
				"distance", "time", "eta", "waypoint",
			},
			Patterns: []string{
				`(?i)\b(directions?|navigate|route|map|location)\b`,
				`(?i)\b(drive|walk|travel|destination|gps)\b`,
				`(?i)\b(distance|time|eta|waypoint)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "destination", Type: TypeString, Required: true, Description: "Destination address or location"},
				{Name: "origin", Type: TypeString, Description: "Starting location"},
				{Name: "mode", Type: TypeString, Choices: []string{"driving", "walking", "transit", "cycling"}, Description: "Travel mode"},
			},
			Service: "ai-maps-navigation",
			Tool:    "get_directions",
			Examples: []string{
				"directions to the mall", "how to get to work", "navigate to 123 Main St", "walking directions to park",
			},
		},
		{
			Intent: Information,
			Keywords: []string{
				"weather", "time", "date", "news", "search", "find", "forecast", "temperature outside",
			},
			Patterns: []string{
				`(?i)\b(weather|forecast)\b`,
				`(?i)\b(news|search|find)\b`,
				`(?i)\bwhat('?s| is) the (time|date)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "query", Type: TypeString, Required: true, Description: "Information query"},
				{Name: "type", Type: TypeString, Choices: []string{"weather", "time", "news", "general"}, Description: "Type of information"},
			},
			Service: "ai-information",
			Tool:    "get_information",
			Examples: []string{
				"what's the weather", "what time is it", "show me the news",
			},
		},
		{
			Intent: FileOperation,
			Keywords: []string{
				"download", "upload", "copy", "move", "delete", "create", "save",
				"file", "document", "folder", "directory", "path", "url",
				"backup", "sync", "share", "export", "import",
			},
			Patterns: []string{
				`(?i)\b(download|upload|copy|move|delete|create|save)\b`,
				`(?i)\b(file|document|folder|directory|path|url)\b`,
				`(?i)\b(backup|sync|share|export|import)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"download", "upload", "copy", "move", "delete", "create"}, Description: "File operation action"},
				{Name: "source", Type: TypeString, Description: "Source file or URL"},
				{Name: "destination", Type: TypeString, Description: "Destination path"},
			},
			Service: "file-manager",
			Tool:    "file_operation",
			Examples: []string{
				"download file from URL", "copy file to desktop", "delete old documents", "create new folder",
			},
		},
		{
			Intent: HardwareControl,
			Keywords: []string{
				"gpio", "pin", "sensor", "led", "relay", "pwm", "analog", "digital",
				"hardware", "device", "component", "circuit", "board", "arduino",
				"raspberry", "pi", "microcontroller",
			},
			Patterns: []string{
				`(?i)\b(gpio|pin|sensor|led|relay|pwm|analog|digital)\b`,
				`(?i)\b(hardware|device|component|circuit|board)\b`,
				`(?i)\b(arduino|raspberry|pi|microcontroller)\b`,
			},
			Parameters: []ParameterSchema{
				{Name: "pin", Type: TypeInteger, Required: true, Min: floatPtr(0), Max: floatPtr(40), Description: "GPIO pin number"},
				{Name: "action", Type: TypeString, Required: true, Choices: []string{"on", "off", "toggle", "read", "write", "pwm"}, Description: "Hardware action"},
				{Name: "value", Type: TypeInteger, Min: floatPtr(0), Max: floatPtr(255), Description: "Value for PWM or analog write"},
			},
			Service: "hardware-bridge",
			Tool:    "control_hardware",
			Examples: []string{
				"turn on LED on pin 13", "read sensor on pin 2", "set PWM on pin 9 to 128", "toggle relay on pin 5",
			},
		},
		{
			// FollowUp is recognized here so the ensemble can route an
			// utterance to it at all; the pipeline resolves it against
			// session.last_intent (or answers directly when there is none)
			// rather than dispatching through Service/Tool (spec.md §4.5).
			Intent: FollowUp,
			Keywords: []string{
				"again", "also", "same", "then", "repeat", "once more", "another",
			},
			Patterns: []string{
				`(?i)\b(do (that|it) again)\b`,
				`(?i)\b(same (thing|again)|one more time|repeat that)\b`,
			},
			Examples: []string{
				"do that again", "same thing for the kitchen", "once more",
			},
		},
		{
			Intent: QuestionAnswer,
			Keywords: []string{
				"what", "how", "why", "when", "where", "who", "tell", "explain",
				"define", "describe", "help", "information", "question",
			},
			Patterns: []string{
				`(?i)\b(what|how|why|when|where|who)\b`,
				`(?i)\b(tell|explain|define|describe)\b.*\?`,
			},
			Parameters: []ParameterSchema{
				{Name: "query", Type: TypeString, Required: true, Description: "Question to answer"},
			},
			Service: "ai-information",
			Tool:    "answer_question",
			Examples: []string{
				"tell me about Python", "how do I cook pasta", "why is the sky blue",
			},
		},
	}
}
