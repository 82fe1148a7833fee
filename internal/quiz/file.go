package quiz

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/victornm/quizgrade/internal/domain"
)

// ReadFile decodes a YAML stream of quiz documents. A file may hold several
// quizzes separated by "---".
func ReadFile(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}

	return Decode(data)
}

func Decode(data []byte) ([]domain.Quiz, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var quizzes []domain.Quiz
	for {
		var q domain.Quiz
		err := dec.Decode(&q)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode quiz #%d: %w", len(quizzes)+1, err)
		}
		if q.ID == "" {
			return nil, fmt.Errorf("decode quiz #%d: missing id", len(quizzes)+1)
		}

		quizzes = append(quizzes, q)
	}

	return quizzes, nil
}
