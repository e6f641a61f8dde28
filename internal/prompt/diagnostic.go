package prompt

import (
	"fmt"
	"strings"
)

// AnalysisKind selects the diagnostic prompt template.
type AnalysisKind int

const (
	Solution AnalysisKind = iota
	Location
)

func (k AnalysisKind) String() string {
	switch k {
	case Solution:
		return "solution"
	case Location:
		return "location"
	default:
		return "unknown"
	}
}

const missingStackTrace = "(tidak tersedia)"

const solutionTemplate = `Anda adalah insinyur perangkat lunak senior yang membantu tim pengembang men-debug aplikasi web React.
Analisis pesan galat berikut dan berikan solusi yang ringkas dalam bentuk langkah-langkah bernomor.
Jangan meminta data tambahan dan jangan berasumsi tentang data pengguna.

Pesan galat:
%s

Stack trace:
%s`

const locationTemplate = `Anda adalah insinyur perangkat lunak senior yang membantu tim pengembang men-debug aplikasi web React.
Berdasarkan pesan galat dan stack trace berikut, identifikasi file, komponen, atau baris kode yang paling mungkin menjadi sumber masalah, lalu jelaskan alasannya secara singkat.
Jangan meminta data tambahan dan jangan berasumsi tentang data pengguna.

Pesan galat:
%s

Stack trace:
%s`

// BuildDiagnostic renders the error-analysis prompt for kind. It carries no
// caller free text other than the error message and stack trace. Unknown
// kinds fall back to the solution template.
func BuildDiagnostic(errorMessage, stackTrace string, kind AnalysisKind) string {
	stack := strings.TrimSpace(stackTrace)
	if stack == "" {
		stack = missingStackTrace
	}

	template := solutionTemplate
	if kind == Location {
		template = locationTemplate
	}

	return fmt.Sprintf(template, strings.TrimSpace(errorMessage), stack)
}
