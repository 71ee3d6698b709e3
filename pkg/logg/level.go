package logg

import (
	"strings"
)

type Level int

const (
	Panic Level = iota
	Fatal
	Error
	Warning
	Info
	Debug
	Trace
)

var levelNames = map[Level]string{
	Panic:   "Panic",
	Fatal:   "Fatal",
	Error:   "Error",
	Warning: "Warning",
	Info:    "Info",
	Debug:   "Debug",
	Trace:   "Trace",
}

func Levels() []Level {
	return []Level{Panic, Fatal, Error, Warning, Info, Debug, Trace}
}

func (i Level) String() string {
	if name, ok := levelNames[i]; ok {
		return name
	}
	return "Unknown"
}

func (i Level) Value() string {
	return strings.ToLower(i.String())
}

func NewLevelFromValue(val string) Level {
	for _, e := range Levels() {
		if e.Value() == val {
			return e
		}
	}
	panic("unknown level: " + val)
}

func ValidLevelValues() (result []string) {
	levels := Levels()
	result = make([]string, len(levels))
	for i := range levels {
		result[i] = levels[i].Value()
	}
	return
}
