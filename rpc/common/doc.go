// Package common provides the data structures shared by the server, the
// client and the command line tool.
//
// Key Components:
//
//   - Message: closed sum type of every protocol frame. Commands (WriteCmd,
//     ReadCmd, DeleteCmd, UseCmd, CurrentDBCmd, ListDBCmd, DetachCmd, RangeCmd)
//     are sent by clients, responses (OkResp, ErrorResp, TokenResp, TokensResp,
//     PairsResp) by the server. Factory functions build each of them.
//
//   - MessageType: the one byte wire tag of a Message. Tags are unique across
//     commands and responses.
//
//   - ServerConfig / ClientConfig: configuration of the server and client
//     components, filled from cobra flags and viper.
//
//   - Logger: custom logger factory for dragonboat's logger package, giving all
//     named loggers of the application a consistent format.
package common
