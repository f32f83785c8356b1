package mcpserver

// CardFormatContract describes the card markup of the master document that
// LLM consumers should follow when editing it.
const CardFormatContract = `# Vitrine Card Format Contract

The master document (` + "`" + `master_content.html` + "`" + `) is a sequence of cards.
Every card describes one topic folder under ` + "`" + `resource/` + "`" + `.

## Structure

` + "```" + `html
<div class="card" data-card-id="3f1c..." data-order="2">
  <div class="card-head">
    <h2>Bone Carving</h2>
    <div class="thumb-wrap"><img class="thumb" src="resource/Bone Carving/thumbs/Bone_Carving.jpg" alt=""></div>
  </div>
  <div class="inner">
    <p>Body HTML.</p>
  </div>
</div>
` + "```" + `

## Rules

1. **The title is the folder name.** The ` + "`" + `h2` + "`" + ` text must match a folder under
   ` + "`" + `resource/` + "`" + ` exactly. Titles must not contain ` + "`" + `/` + "`" + ` or ` + "`" + `\` + "`" + `.
2. **Do not invent ids.** Leave ` + "`" + `data-card-id` + "`" + ` out of new cards; publishing assigns one.
   Never change the id of an existing card.
3. **Order** is an optional integer in ` + "`" + `data-order` + "`" + `. Cards without it go last, by title.
4. **Hidden cards** carry ` + "`" + `data-hidden="true"` + "`" + ` or the ` + "`" + `is-hidden` + "`" + ` class. They are
   kept in the master document but left out of the published pages.
5. **Hard delete** is requested with ` + "`" + `data-delete="true"` + "`" + `; the next prune removes the
   card and its folder.
6. **Locked cards** carry ` + "`" + `data-locked="true"` + "`" + `; prune never hard deletes them.
7. **Paths** in the body start with ` + "`" + `resource/` + "`" + ` (e.g. ` + "`" + `resource/Bone Carving/figure.png` + "`" + `).
   Publishing rewrites them for each output page.
8. **No scripts.** Scripts, event handlers, inline styles and ` + "`" + `javascript:` + "`" + ` URLs are
   removed when publishing.

## Assets

- Upload images and PDFs into a folder with the ` + "`" + `upload_asset` + "`" + ` tool.
- The first image of a folder (then PDF, then video) is its thumbnail source.
- Call ` + "`" + `refresh_thumbnail` + "`" + ` after replacing the source.
`
