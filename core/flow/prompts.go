package flow

import (
	"fmt"

	"github.com/zimyouth/regbot/core/session"
)

// Button reply ids for the payment check question.
const (
	ButtonPaidYes = "paid_yes"
	ButtonPaidNo  = "paid_no"
)

const (
	promptGreetingHint = "👋 Hi! Say 'Hi' to start your registration for the Youth Big Sabbath."

	promptPaymentCheck = "👋 Hello! Let me help you register for the *Youth Big Sabbath*.\n\n" +
		"Have you already paid the $2 EcoCash to *0773 220 297*?"

	promptPaymentInstructions = "💰 Please make the $2 payment first using EcoCash.\n\n" +
		"📱 Dial this USSD code on your phone:\n" +
		"*151*2*2*0773220297*2#\n\n" +
		"After payment, reply with 'PAID' to continue with registration."

	promptPaymentReminder = "💰 Please complete the $2 EcoCash payment first:\n" +
		"*151*2*2*0773220297*2#\n\n" +
		"Then reply with 'PAID' to continue."

	promptAskName      = "Great! Let's proceed with your registration.\n\n📝 Please provide your *Full Name*:"
	promptAskNameAgain = "Perfect! Now let's complete your registration.\n\n📝 Please provide your *Full Name*:"
	promptAskPhone     = "📱 Thank you! Now please provide your *Phone Number*:"
	promptAskEmail     = "📧 Great! Now please provide your *Email Address*:"
	promptAskChurch    = "⛪ Perfect! Now please provide your *Church Name*:"
	promptAskReference = "💳 Excellent! Now please provide your *EcoCash Reference Number*:"

	promptAskScreenshot = "📸 Almost done! Please send a *screenshot* of your payment confirmation.\n\n" +
		"You can also skip this step by typing 'SKIP' and we'll verify your payment using the reference number."

	promptGenerating = "🎟️ Your ticket is being generated! Please wait a moment..."

	promptCompleted = "✅ Your registration is already completed! Your ticket has been sent. " +
		"Thank you for registering for the Youth Big Sabbath.\n\n" +
		"If you need help, please contact our support team."

	// promptYesNo is one of the three canonical re-prompts.
	promptYesNo = "Please reply with 'Yes' if you have paid or 'No' if you haven't paid yet."
)

// promptInvalidFormat is the canonical re-prompt for shape failures.
func promptInvalidFormat(what, example string) string {
	return fmt.Sprintf("Please provide a valid %s (e.g., %s).", what, example)
}

// promptMinChars is the canonical re-prompt for too-short answers.
func promptMinChars(what string, n int) string {
	return fmt.Sprintf("Please provide a valid %s (at least %d characters).", what, n)
}

func summaryMessage(data session.Registration) string {
	return "🎉 *Registration Completed!*\n\n" +
		"✅ Your details have been recorded for the Youth Big Sabbath.\n\n" +
		"🎟️ *Generating your ticket now...* Please wait a moment!\n\n" +
		"*Registration Summary:*\n" +
		fmt.Sprintf("👤 Name: %s\n", data.FullName) +
		fmt.Sprintf("📱 Phone: %s\n", data.PhoneNumber) +
		fmt.Sprintf("📧 Email: %s\n", data.Email) +
		fmt.Sprintf("⛪ Church: %s\n", data.ChurchName) +
		fmt.Sprintf("💳 Reference: %s", data.EcocashReference)
}
