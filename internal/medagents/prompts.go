package medagents

import (
	"fmt"
	"strconv"
	"strings"
)

// Expert counts gathered in stage 1.
const (
	NumQuestionDomains = 5
	NumOptionDomains   = 2
)

const evidenceSuffix = "\n\nYou are given optional external evidence excerpts. " +
	"Use them if helpful. If you use evidence, cite it by its id like [E1]. " +
	"If evidence is insufficient, say so and rely on your own knowledge.\n" +
	"Evidence:\n%s\n"

func fieldFormat(n int) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "Field" + strconv.Itoa(i)
	}
	return "Medical Field: " + strings.Join(fields, " | ")
}

func fallbackDomains(n int) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "General Medicine"
	}
	return "Medical Field: " + strings.Join(fields, " | ")
}

func questionDomainsPrompt(question string) (system, user string) {
	system = "You are a medical expert who specializes in categorizing a specific medical scenario into specific areas of medicine."
	user = "You need to complete the following steps:" +
		"1. Carefully read the medical scenario presented in the question: '''" + question + "'''. \n" +
		"2. Based on the medical scenario in it, classify the question into five different subfields of medicine. \n" +
		"3. You should output in exactly the same format as '''" + fieldFormat(NumQuestionDomains) + "'''."
	return system, user
}

func optionsDomainsPrompt(question, options string) (system, user string) {
	system = "As a medical expert, you possess the ability to discern the two most relevant fields of expertise needed to address a multiple-choice question encapsulating a specific medical context."
	user = "You need to complete the following steps:" +
		"1. Carefully read the medical scenario presented in the question: '''" + question + "'''." +
		"2. The available options are: '''" + options + "'''. Strive to understand the fundamental connections between the question and the options." +
		"3. Your core aim should be to categorize the options into two distinct subfields of medicine. " +
		"You should output in exactly the same format as '''" + fieldFormat(NumOptionDomains) + "'''"
	return system, user
}

func questionAnalysisPrompt(question, domain, evidence string) (system, user string) {
	system = "You are a medical expert in the domain of " + domain + ". " +
		"From your area of specialization, you will scrutinize and diagnose the symptoms presented by patients in specific medical scenarios."
	user = "Please meticulously examine the medical scenario outlined in this question: '''" + question + "'''." +
		"Drawing upon your medical expertise, interpret the condition being depicted. " +
		"Subsequently, identify and highlight the aspects of the issue that you find most alarming or noteworthy."
	return system, withEvidence(user, evidence)
}

func optionsAnalysisPrompt(question, options, domain string, questionAnalyses *ordered, evidence string) (system, user string) {
	system = "You are a medical expert specialized in the " + domain + " domain. " +
		"You are adept at comprehending the nexus between questions and choices in multiple-choice exams and determining their validity. " +
		"Your task, in particular, is to analyze individual options with your expert medical knowledge and evaluate their relevancy and accuracy."

	var b strings.Builder
	b.WriteString("Regarding the question: '''" + question + "''', we procured the analysis of five experts from diverse domains. \n")
	for _, d := range questionAnalyses.Keys() {
		fmt.Fprintf(&b, "The evaluation from the %s expert suggests: %s \n", d, questionAnalyses.Get(d))
	}
	b.WriteString("The following are the options available: '''" + options + "'''.\n" +
		"Reviewing the question's analysis from the expert team, you're required to fathom the connection between the options and the question from the perspective of your respective domain and " +
		"scrutinize each option individually to assess whether it is plausible or should be eliminated based on reason and logic. " +
		"Pay close attention to discerning the disparities among the different options and rationalize their existence. " +
		"A handful of these options might seem right on the first glance but could potentially be misleading in reality.")
	return system, withEvidence(b.String(), evidence)
}

func withEvidence(prompt, evidence string) string {
	if evidence == "" {
		return prompt
	}
	return prompt + fmt.Sprintf(evidenceSuffix, evidence)
}

// reportsText renders analyses as numbered reports for the synthesizer.
func reportsText(analyses *ordered, label, content string) string {
	var b strings.Builder
	for i, d := range analyses.Keys() {
		if label == "Question" {
			fmt.Fprintf(&b, "Report%d \n", i)
		} else {
			fmt.Fprintf(&b, "Report%d: \n", i)
		}
		fmt.Fprintf(&b, "%s: %s \n", label, content)
		fmt.Fprintf(&b, "Analysis: %s \n", analyses.Get(d))
		b.WriteString("\n\n")
	}
	return b.String()
}

func synthesizedReportPrompt(questionReports, optionReports string) (system, user string) {
	system = "You are a medical decision maker who excels at summarizing and synthesizing based on multiple experts from various domain experts."
	format := "Key Knowledge: [extracted key knowledge] \nTotal Analysis: [synthesized analysis] \n"
	user = "Here are some reports from different medical domain experts.\n" +
		questionReports + optionReports +
		"You need to complete the following steps:" +
		"1. Take careful and comprehensive consideration of the following reports." +
		"2. Extract key knowledge from the following reports." +
		"3. Derive the comprehensive and summarized analysis based on the knowledge." +
		"4. Your ultimate goal is to derive a refined and synthesized report based on the following reports." +
		"You should output in exactly the same format as: " + format
	return system, user
}

func consensusPrompt(domain, report string) (system, user string) {
	system = "You are a medical expert specialized in the " + domain + " domain."
	user = "Here is a medical report: " + report + " \n" +
		"As a medical expert specialized in " + domain + ", please carefully read the report and decide whether your opinions are consistent with this report." +
		"Please respond only with: [YES or NO]."
	return system, user
}

func consensusOpinionPrompt(domain, report string) string {
	return "Here is a medical report: " + report + " \n" +
		"As a medical expert specialized in " + domain + ", please make full use of your expertise to propose revisions to this report." +
		"You should output in exactly the same format as '''Revisions: [proposed revision advice] '''"
}

func revisionPrompt(report string, advice *ordered) string {
	var b strings.Builder
	b.WriteString("Here is the original report: " + report + "\n\n")
	for _, d := range advice.Keys() {
		fmt.Fprintf(&b, "Here is advice from a medical expert specialized in %s: %s.\n", d, advice.Get(d))
	}
	b.WriteString("Based on the above advice, output the revised analysis in exactly the same format as '''Total Analysis: [revised analysis] '''")
	return b.String()
}

func finalAnswerPrompt(report string) string {
	return "Here is a synthesized report: " + report + " \n" +
		"Based on the above report, select the optimal choice to answer the question. Points to note: \n" +
		"1. The analyses provided should guide you towards the correct response. \n" +
		"2. Any option containing incorrect information inherently cannot be the correct choice. \n" +
		"3. Please respond only with the selected option's letter, like A, B, C, D, or E, using the following format: '''Option: [Selected Option's Letter]'''. " +
		"Remember, it's the letter we need, not the full content of the option."
}
