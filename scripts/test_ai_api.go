package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
)

const baseURL = "http://localhost:3000/api"

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url, token string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{} // No timeout, answer generation can be slow
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

// printAnswer prints the answer payload concisely to avoid a huge citation dump
func printAnswer(body []byte) {
	var askResp map[string]interface{}
	json.Unmarshal(body, &askResp)
	data, ok := askResp["data"].(map[string]interface{})
	if !ok {
		prettyPrint(askResp)
		return
	}
	fmt.Printf("Answer: %s\n", data["answer"])
	fmt.Printf("Confidence: %s | Category: %s | Iterations: %v\n",
		data["confidence"], data["category"], data["iterations"])
	if citations, ok := data["citations"].(map[string]interface{}); ok {
		fmt.Printf("Citations: %d\n", len(citations))
	}
	if degraded, ok := data["degraded_sources"].([]interface{}); ok && len(degraded) > 0 {
		fmt.Printf("Degraded sources: %v\n", degraded)
	}
}

func main() {
	color.Cyan("🚀 Starting Answer Pipeline & Prompt Admin API Test\n")

	token := os.Getenv("API_TOKEN")
	if token == "" {
		color.Red("API_TOKEN not set. Mint one with the app's JWT_SECRET first.")
		os.Exit(1)
	}

	// 1. Test Admin: List Prompt Stages
	color.Yellow("\n[ADMIN] 1. List Prompt Stages")
	resp, body, err := sendRequest("GET", "/admin/v1/prompts", token, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var promptsResp map[string]interface{}
	json.Unmarshal(body, &promptsResp)
	prettyPrint(promptsResp)

	// 2. Test Admin: Save Smoke-Test Preset
	color.Yellow("\n[ADMIN] 2. Save 'Smoke Test' Preset")
	presetReq := map[string]interface{}{
		"name": "Smoke Test",
	}
	resp, body, err = sendRequest("POST", "/admin/v1/presets", token, presetReq)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var presetResp map[string]interface{}
	json.Unmarshal(body, &presetResp)
	prettyPrint(presetResp)

	var presetName string
	if data, ok := presetResp["data"].(map[string]interface{}); ok {
		if name, ok := data["name"].(string); ok {
			presetName = name
		}
	}

	// 3. Test Documents: Create Knowledge Base Entry
	color.Yellow("\n[DOCS] 3. Create Knowledge Base Document")
	docReq := map[string]interface{}{
		"title":   "제2형 당뇨병 혈당 조절 지침",
		"content": "제2형 당뇨병 환자의 혈당 조절 목표는 당화혈색소 7.0% 미만이다. 규칙적인 유산소 운동과 식사 관리가 권장된다.",
	}
	resp, body, err = sendRequest("POST", "/document/v1", token, docReq)
	var documentID string
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var docResp map[string]interface{}
	json.Unmarshal(body, &docResp)
	if data, ok := docResp["data"].(map[string]interface{}); ok {
		if id, ok := data["id"].(string); ok {
			documentID = id
			fmt.Printf("Created Document ID: %s (category: %v)\n", documentID, data["category"])
		}
	}

	// 4. Test Ask: First Question
	color.Yellow("\n[USER] 4. Ask: Diabetes Glucose Management")
	askReq := map[string]interface{}{
		"question": "당뇨병 환자의 혈당 관리 방법은 무엇인가요?",
	}
	resp, body, err = sendRequest("POST", "/chatbot/v1/ask", token, askReq)
	if err != nil {
		color.Red("Failed: %v", err)
	} else {
		color.Green("Status: %s", resp.Status)
		printAnswer(body)
	}

	// 5. Test Ask: Follow-Up With History
	color.Yellow("\n[USER] 5. Ask: Follow-Up Using Conversation History")
	followUpReq := map[string]interface{}{
		"question": "운동은 어느 정도 해야 하나요?",
		"history": []map[string]string{
			{"role": "user", "content": "당뇨병 환자의 혈당 관리 방법은 무엇인가요?"},
			{"role": "assistant", "content": "혈당 조절 목표는 당화혈색소 7.0% 미만이며 운동과 식사 관리가 필요합니다."},
		},
	}
	resp, body, err = sendRequest("POST", "/chatbot/v1/ask", token, followUpReq)
	if err != nil {
		color.Red("Failed: %v", err)
	} else {
		color.Green("Status: %s", resp.Status)
		printAnswer(body)
	}

	// 6. Test Stats: Pipeline Counters
	color.Yellow("\n[ADMIN] 6. Get System Stats")
	resp, body, err = sendRequest("GET", "/admin/v1/stats", token, nil)
	if err != nil {
		color.Red("Failed: %v", err)
	} else {
		color.Green("Status: %s", resp.Status)
		var statsResp map[string]interface{}
		json.Unmarshal(body, &statsResp)
		prettyPrint(statsResp)
	}

	// 7. Cleanup
	if documentID != "" {
		color.Yellow("\n[DOCS] 7. Cleanup: Delete Test Document")
		resp, _, err = sendRequest("DELETE", "/document/v1/"+documentID, token, nil)
		if err != nil {
			color.Red("Failed: %v", err)
		} else {
			color.Green("Status: %s", resp.Status)
		}
	} else {
		color.Red("\n[SKIP] Document cleanup skipped (no ID returned from create)")
	}

	if presetName != "" {
		color.Yellow("\n[ADMIN] 8. Cleanup: Delete 'Smoke Test' Preset")
		resp, _, err = sendRequest("DELETE", "/admin/v1/presets/"+presetName, token, nil)
		if err != nil {
			color.Red("Failed: %v", err)
		} else {
			color.Green("Status: %s", resp.Status)
		}
	} else {
		color.Red("\n[SKIP] Preset cleanup skipped (no name returned from save)")
	}

	color.Cyan("\n✅ Test Sequence Complete")
}
