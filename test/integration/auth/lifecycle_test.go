// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

//go:build integration

package auth_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/driftboard/driftboard/internal/auth"
)

var _ = Describe("Account lifecycle", func() {
	BeforeEach(func() {
		truncateAll(env.ctx, env.pool)
	})

	Describe("Signup", func() {
		It("creates an account, a session, and mails a verification code", func() {
			result, err := env.Service.Signup(env.ctx, "Alice@Example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.User.Email).To(Equal("alice@example.com"))
			Expect(result.User.EmailVerified).To(BeFalse())
			Expect(result.Session.ID).To(HaveLen(40))

			sent := env.Mailer.Sent()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Kind).To(Equal("verification"))
			Expect(sent[0].Secret).To(HaveLen(8))

			v, err := env.Service.ValidateSession(env.ctx, result.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).NotTo(BeNil())
			Expect(v.User.ID).To(Equal(result.User.ID))
		})

		It("refuses a second account on the same email, case-insensitively", func() {
			_, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.Signup(env.ctx, "ALICE@example.com", "other password")
			Expect(err).To(MatchError(auth.ErrEmailTaken))
		})

		It("only lets one of two concurrent signups win the email", func() {
			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = env.Service.Signup(env.ctx, "race@example.com", "correct horse")
				}(i)
			}
			wg.Wait()

			failures := 0
			for _, err := range errs {
				if err != nil {
					Expect(err).To(MatchError(auth.ErrEmailTaken))
					failures++
				}
			}
			Expect(failures).To(Equal(1))
		})
	})

	Describe("Email verification", func() {
		It("verifies the account and rotates every session", func() {
			result, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			code := env.Mailer.Last().Secret

			// A second login stacks another session that the redeem must kill.
			second, err := env.Service.Login(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			redeemed, err := env.Service.RedeemVerification(env.ctx, result.User.ID, code)
			Expect(err).NotTo(HaveOccurred())
			Expect(redeemed.User.EmailVerified).To(BeTrue())

			for _, old := range []string{result.Session.ID, second.Session.ID} {
				v, err := env.Service.ValidateSession(env.ctx, old)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(BeNil())
			}

			v, err := env.Service.ValidateSession(env.ctx, redeemed.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).NotTo(BeNil())
		})

		It("burns the code on a wrong guess", func() {
			result, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			code := env.Mailer.Last().Secret

			_, err = env.Service.RedeemVerification(env.ctx, result.User.ID, "WRONG123")
			Expect(err).To(MatchError(auth.ErrCodeInvalid))

			// The stored code was consumed by the failed attempt.
			_, err = env.Service.RedeemVerification(env.ctx, result.User.ID, code)
			Expect(err).To(MatchError(auth.ErrCodeInvalid))
		})

		It("throttles a resend while the code is live", func() {
			result, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			err = env.Service.IssueVerification(env.ctx, result.User.ID)
			Expect(err).To(MatchError(auth.ErrResendThrottled))

			wait, ok := auth.RetryAfter(err)
			Expect(ok).To(BeTrue())
			Expect(wait).To(BeNumerically(">", 0))
		})
	})

	Describe("Login", func() {
		BeforeEach(func() {
			_, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
		})

		It("authenticates and leaves prior sessions alone", func() {
			first, err := env.Service.Login(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			second, err := env.Service.Login(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			for _, id := range []string{first.Session.ID, second.Session.ID} {
				v, err := env.Service.ValidateSession(env.ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).NotTo(BeNil())
			}
		})

		It("rejects a wrong password and an unknown address identically", func() {
			_, err := env.Service.Login(env.ctx, "alice@example.com", "wrong password")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))

			_, err = env.Service.Login(env.ctx, "nobody@example.com", "correct horse")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		})

		It("invalidates the session on logout", func() {
			result, err := env.Service.Login(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Service.Logout(env.ctx, result.Session.ID)).To(Succeed())

			v, err := env.Service.ValidateSession(env.ctx, result.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNil())
		})
	})

	Describe("Password reset", func() {
		It("replaces the password and revokes every session", func() {
			signup, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Service.RequestPasswordReset(env.ctx, "alice@example.com")).To(Succeed())
			Expect(env.Mailer.Last().Kind).To(Equal("reset"))
			token := env.Mailer.Last().Secret
			Expect(token).To(HaveLen(40))

			result, err := env.Service.ResetPassword(env.ctx, token, "battery staple")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.User.EmailVerified).To(BeTrue(), "redeeming a mailed link proves the address")

			v, err := env.Service.ValidateSession(env.ctx, signup.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNil())

			_, err = env.Service.Login(env.ctx, "alice@example.com", "correct horse")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))

			_, err = env.Service.Login(env.ctx, "alice@example.com", "battery staple")
			Expect(err).NotTo(HaveOccurred())
		})

		It("stays silent for an unknown address", func() {
			before := len(env.Mailer.Sent())
			Expect(env.Service.RequestPasswordReset(env.ctx, "nobody@example.com")).To(Succeed())
			Expect(env.Mailer.Sent()).To(HaveLen(before))
		})

		It("lets at most one of two concurrent redeems consume a token", func() {
			_, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Service.RequestPasswordReset(env.ctx, "alice@example.com")).To(Succeed())
			token := env.Mailer.Last().Secret

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = env.Service.ResetPassword(env.ctx, token, "battery staple")
				}(i)
			}
			wg.Wait()

			failures := 0
			for _, err := range errs {
				if err != nil {
					Expect(err).To(MatchError(auth.ErrTokenInvalid))
					failures++
				}
			}
			Expect(failures).To(Equal(1))
		})

		It("refuses a token twice", func() {
			_, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Service.RequestPasswordReset(env.ctx, "alice@example.com")).To(Succeed())
			token := env.Mailer.Last().Secret

			_, err = env.Service.ResetPassword(env.ctx, token, "battery staple")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.ResetPassword(env.ctx, token, "battery staple")
			Expect(err).To(MatchError(auth.ErrTokenInvalid))
		})
	})

	Describe("External login", func() {
		It("creates the account on first login and reuses it after", func() {
			first, err := env.Service.LoginExternal(env.ctx, "provider|sub-1", "carol@example.com", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.User.EmailVerified).To(BeTrue())

			again, err := env.Service.LoginExternal(env.ctx, "provider|sub-1", "carol@example.com", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.User.ID).To(Equal(first.User.ID))
		})

		It("refuses to claim an email a password account owns", func() {
			_, err := env.Service.Signup(env.ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.LoginExternal(env.ctx, "provider|sub-2", "alice@example.com", true)
			Expect(err).To(MatchError(auth.ErrEmailTaken))
		})
	})
})
