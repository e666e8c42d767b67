// Package plugin implements the extension pipeline of the auth engine.
//
// Independently authored plugins observe or short-circuit core operations
// without the core depending on them. A plugin declares hooks at fixed
// extension points (BeforeSignIn, AfterSignUp, ...) and may contribute
// additional routes mounted next to the core ones.
//
// Execution model, per request:
//
//  1. before* hooks run in plugin registration order. Any hook may return a
//     terminal Result, which short-circuits the chain: later before-hooks and
//     the core operation do not run.
//  2. The core operation executes.
//  3. after* hooks run in registration order and may transform the response.
//     After a short-circuit they still observe the terminal response but
//     cannot resurrect the request into a success.
//
// Hooks share an ephemeral, request-scoped Context bag; the registry itself
// holds no cross-request state and is treated as read-only once the engine
// starts serving.
//
// A hook returning an error aborts the pipeline with a *HookError carrying
// the originating plugin's identifier. Effects already applied by earlier
// plugins are not rolled back; plugins own their compensating actions.
package plugin
