// Package mailer delivers the transactional emails the authentication flows
// produce: magic links, email confirmations, password resets.
//
// EmailSender is the delivery contract. NewPostmarkClient sends through
// Postmark; NewDevSender writes emails to disk for local development. The
// Messages builder turns verification tokens into ready-to-send emails so
// callers never assemble HTML by hand.
package mailer
