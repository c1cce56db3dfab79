package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDescribe(t *testing.T) {
	out, err := describe("/run deploy env=prod", "")
	require.NoError(t, err)

	var got struct {
		Command string
		Fields  struct {
			Workflow string
			Args     map[string]string
		}
	}
	require.NoError(t, yaml.Unmarshal(out, &got))
	assert.Equal(t, "run", got.Command)
	assert.Equal(t, "deploy", got.Fields.Workflow)
	assert.Equal(t, map[string]string{"env": "prod"}, got.Fields.Args)

	out, err = describe("hello", "no command here")
	require.NoError(t, err)
	assert.Equal(t, "command: null\n", string(out))
}

func TestParseCommandReadsStdin(t *testing.T) {
	cmd := parseCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetIn(strings.NewReader("/memo\nbuy milk"))
	cmd.SetArgs([]string{"--subject", "hi", "--body-file", "-"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "command: memo")
	assert.Contains(t, stdout.String(), "buy milk")
}

func TestSignCommand(t *testing.T) {
	cmd := signCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetIn(strings.NewReader(`{"a":1}`))
	cmd.SetArgs([]string{"--secret", "whsec"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(stdout.String(), "Resend-Signature: t="))
	assert.Contains(t, stdout.String(), ",v1=")
}

func TestCommandsList(t *testing.T) {
	cmd := commandsCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "/extract\n")
	assert.Contains(t, stdout.String(), "/tweet\n")
}
