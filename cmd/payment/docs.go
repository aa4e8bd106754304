package main

// @title Course Payments API
// @version 1.0
// @description Payments, balance ledger, withdrawals, referrals and promocodes of the course marketplace

// @host localhost:8083
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name Payments
// @tag.description Purchases, top-ups and admin status overrides

// @tag.name Balance
// @tag.description Internal balance and ledger history

// @tag.name Withdrawals
// @tag.description Payouts from the internal balance

// @tag.name Referrals
// @tag.description Referral attachment and partner statistics

// @tag.name Promocodes
// @tag.description Discount and referral-access codes

// @tag.name Webhooks
// @tag.description Payment gateway notifications

// @tag.name Health
// @tag.description Health check endpoints
