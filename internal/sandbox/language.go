package sandbox

// Language describes how to compile (if needed) and run a submission's
// source in a given language, including the wall-time multiplier applied
// to a problem's base time limit for interpreted languages.
type Language struct {
	ID               string
	SourceFile       string
	BinaryFile       string
	CompileEnabled   bool
	CompileCmdTpl    []string
	RunCmdTpl        []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// Languages is the fixed table of supported judging languages. The
// multipliers compensate for JIT warmup and interpreter overhead so that a
// problem's base limits stay comparable across languages.
var Languages = map[string]Language{
	"cpp17": {
		ID:               "cpp17",
		SourceFile:       "main.cpp",
		BinaryFile:       "main",
		CompileEnabled:   true,
		CompileCmdTpl:    []string{"g++", "-O2", "-std=c++17", "-o", "{bin}", "{src}"},
		RunCmdTpl:        []string{"{bin}"},
		TimeMultiplier:   1.0,
		MemoryMultiplier: 1.0,
	},
	"java17": {
		ID:               "java17",
		SourceFile:       "Main.java",
		BinaryFile:       "Main",
		CompileEnabled:   true,
		CompileCmdTpl:    []string{"javac", "-d", "{workdir}", "{src}"},
		RunCmdTpl:        []string{"java", "-cp", "{workdir}", "Main"},
		TimeMultiplier:   3.0,
		MemoryMultiplier: 2.0,
	},
	"python3": {
		ID:               "python3",
		SourceFile:       "main.py",
		CompileEnabled:   false,
		RunCmdTpl:        []string{"python3", "{src}"},
		TimeMultiplier:   4.0,
		MemoryMultiplier: 1.5,
	},
}

// Resolve looks up a Language by ID.
func Resolve(id string) (Language, bool) {
	lang, ok := Languages[id]
	return lang, ok
}
