package logging

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, Debug, ParseLevel("DEBUG"))
	assert.Equal(t, Warning, ParseLevel("warn"))
	assert.Equal(t, Critical, ParseLevel("fatal"))
	assert.Equal(t, Warning, ParseLevel("verbose"))
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel(Error)
	t.Cleanup(func() {
		SetLogLevel(Warning)
		SetOutput(io.Discard)
	})

	Warningf("dropped %d", 1)
	Errorf("kept %d", 2)
	Criticalf("kept %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "level=ERROR msg=\"kept 2\"")
	assert.Contains(t, out, "level=ERROR+4 msg=\"kept 3\"")
}

func TestSetOutputWhileLogging(t *testing.T) {
	SetLogLevel(Debug)
	t.Cleanup(func() {
		SetLogLevel(Warning)
		SetOutput(io.Discard)
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				SetOutput(io.Discard)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Debugf("line %d", j)
				Logger().Info("structured", "j", j)
			}
		}()
	}
	wg.Wait()

	var buf bytes.Buffer
	SetOutput(&buf)
	Infof("after")
	assert.Contains(t, buf.String(), "msg=after")
}
