package execution

// Language identifies a supported programming language runtime.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
	LanguageGo         Language = "go"
)

// SourceFile is a single named file in a request workspace.
type SourceFile struct {
	Name    string
	Content string
}

// Request describes one logical run of user-authored code.
//
// SessionID is caller-supplied and opaque; it must be unique per in-flight
// run. MainFile must name one of Files. Dependencies maps package name to
// version and may be empty. When Tests is non-empty the request is a grading
// request and Stdin is ignored in favour of per-test input.
type Request struct {
	SessionID    string
	Language     Language
	Files        []SourceFile
	MainFile     string
	Dependencies map[string]string
	Stdin        string
	Limits       RunLimits
	Tests        []TestCase
}

// HasFile reports whether the request workspace contains the named file.
func (r Request) HasFile(name string) bool {
	for _, f := range r.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}
