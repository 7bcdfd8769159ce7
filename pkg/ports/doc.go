/*
Package ports defines the driven ports (interfaces) of the flow engine.

These interfaces decouple the execution core from external collaborators:
storage backends, flow definition sources, channel transports, node
executors and event consumers.

# Key Interfaces

  - SessionStore: persists and reloads FlowSessionState rows (a best-effort
    mirror; the in-memory copy stays authoritative for the process lifetime).
  - FlowProvider: supplies flow graphs by id or company.
  - NodeExecutor: the uniform contract every node type is dispatched through.
  - Dispatcher: channel-specific message/media delivery, opaque to the engine.
  - EventSink: at-most-once, non-blocking session lifecycle notifications.
*/
package ports
