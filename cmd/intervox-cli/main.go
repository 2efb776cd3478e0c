package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "provision":
		return handleProvision(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleProvision(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("INTERVOX_ADDR", defaultAddr), "Intervox gateway address")
	token := fs.String("token", os.Getenv("INTERVOX_OPERATOR_TOKEN"), "operator bearer token")
	topic := fs.String("topic", "", "research topic")
	goal := fs.String("goal", "", "research goal")
	instructions := fs.String("instructions", "", "extra instructions for the agent")
	duration := fs.Int("duration", 20, "interview duration in minutes")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *topic == "" || *goal == "" {
		fmt.Fprintln(stderr, "provision requires -topic and -goal")
		fs.Usage()
		return 2
	}

	payload, err := json.Marshal(map[string]any{
		"topic":            *topic,
		"goal":             *goal,
		"instructions":     *instructions,
		"duration_minutes": *duration,
	})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/sessions", *token, payload)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return statusExitCode(status)
	}

	if status != http.StatusOK {
		var failure struct {
			Error        string `json:"error"`
			Collaborator string `json:"collaborator"`
		}
		_ = json.Unmarshal(respBody, &failure)
		if failure.Collaborator != "" {
			fmt.Fprintf(stderr, "provisioning failed (%s): %s\n", failure.Collaborator, failure.Error)
		} else {
			fmt.Fprintf(stderr, "provisioning failed: status %d: %s\n", status, failure.Error)
		}
		return 1
	}

	var result struct {
		ShareURL  string `json:"share_url"`
		FolderURL string `json:"folder_url"`
		FolderID  string `json:"folder_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "share link: %s\n", result.ShareURL)
	fmt.Fprintf(stdout, "folder:     %s\n", result.FolderURL)
	return 0
}

func httpPost(client *http.Client, url string, token string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}
	return respBody, res.StatusCode, nil
}

func statusExitCode(status int) int {
	if status == http.StatusOK {
		return 0
	}
	return 1
}

func envOrDefault(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage(stderr io.Writer) {
	fmt.Fprintln(stderr, "usage: intervox-cli provision -topic <topic> -goal <goal> [-instructions <text>] [-duration <minutes>]")
}
